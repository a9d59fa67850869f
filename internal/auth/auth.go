// Package auth keeps the allowlist of Telegram users permitted to chat.
package auth

import (
	"sort"
	"sync"
)

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID int64) error
}

// Service answers allowlist lookups from memory and writes changes through to
// the repository.
type Service struct {
	repo    Repository
	adminID int64

	mu    sync.RWMutex
	users map[int64]User
}

func NewWithRepo(repo Repository, adminID int64, initial []int64) (*Service, error) {
	s := &Service{repo: repo, adminID: adminID, users: make(map[int64]User)}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			s.users[u.ID] = u
		}
	}
	// ids from the environment carry no profile
	for _, id := range initial {
		if _, ok := s.users[id]; !ok {
			s.users[id] = User{ID: id}
		}
	}
	return s, nil
}

func (s *Service) AdminID() int64 { return s.adminID }

// IsAdmin reports whether userID may manage the allowlist.
func (s *Service) IsAdmin(userID int64) bool {
	return s.adminID != 0 && userID == s.adminID
}

// IsAllowed reports whether userID may chat. The admin is always allowed.
func (s *Service) IsAllowed(userID int64) bool {
	if s.IsAdmin(userID) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

func (s *Service) Upsert(user User) error {
	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(user)
	}
	return nil
}

func (s *Service) Remove(userID int64) error {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(userID)
	}
	return nil
}

// List returns the allowed users ordered by id.
func (s *Service) List() []User {
	s.mu.RLock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
