// Package pending stores access requests from users not yet on the allowlist.
package pending

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"doc-chatter/internal/auth"
)

type Repository interface {
	LoadAll() ([]auth.User, error)
	Upsert(user auth.User) error
	Remove(userID int64) error
}

// Queue is the in-memory view of open requests, written through to a
// Repository.
type Queue struct {
	repo Repository

	mu    sync.Mutex
	users map[int64]auth.User
}

func NewQueue(repo Repository) (*Queue, error) {
	q := &Queue{repo: repo, users: make(map[int64]auth.User)}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			q.users[u.ID] = u
		}
	}
	return q, nil
}

// Add records a request and reports whether it is new.
func (q *Queue) Add(u auth.User) (bool, error) {
	q.mu.Lock()
	_, exists := q.users[u.ID]
	q.users[u.ID] = u
	q.mu.Unlock()
	if exists {
		return false, nil
	}
	if q.repo != nil {
		return true, q.repo.Upsert(u)
	}
	return true, nil
}

// Take removes a request and returns it. Unknown ids yield a bare user.
func (q *Queue) Take(userID int64) (auth.User, error) {
	q.mu.Lock()
	u, ok := q.users[userID]
	delete(q.users, userID)
	q.mu.Unlock()
	if !ok {
		u = auth.User{ID: userID}
	}
	if q.repo != nil {
		return u, q.repo.Remove(userID)
	}
	return u, nil
}

func (q *Queue) List() []auth.User {
	q.mu.Lock()
	out := make([]auth.User, 0, len(q.users))
	for _, u := range q.users {
		out = append(out, u)
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(user auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, u := range users {
		if u.ID == user.ID {
			users[i] = user
			updated = true
			break
		}
	}
	if !updated {
		users = append(users, user)
	}
	return r.saveUnlocked(users)
}

func (r *FileRepository) Remove(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]auth.User, 0, len(users))
	for _, u := range users {
		if u.ID != userID {
			out = append(out, u)
		}
	}
	return r.saveUnlocked(out)
}

func (r *FileRepository) loadUnlocked() ([]auth.User, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []auth.User{}, nil
	}
	var users []auth.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return users, nil
}

func (r *FileRepository) saveUnlocked(users []auth.User) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return os.Rename(tmp, r.path)
}
