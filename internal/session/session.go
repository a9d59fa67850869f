// Package session holds per-chat state: the specification, the batching
// settings, the attached document and the conversation being continued.
package session

import (
	"fmt"
	"sync"
	"time"

	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
)

const (
	DefaultBatchSize  = 5
	MinBatchSize      = 1
	MaxBatchSize      = 10
	DefaultMaxBatches = 3
	MinMaxBatches     = 1
	MaxMaxBatches     = 5
)

// Target says whether the next submission starts a new stored conversation
// or continues an existing one.
type Target interface {
	isTarget()
}

type NewConversation struct{}

type ExistingConversation struct {
	ID string
}

func (NewConversation) isTarget()      {}
func (ExistingConversation) isTarget() {}

// Session is the state of one chat. It is not safe for concurrent use on its
// own; Manager.Do serialises access.
type Session struct {
	ChatID       int64
	Spec         prompt.Specification
	BatchSize    int
	MaxBatches   int
	AttachmentID string
	FileName     string
	FileContent  string
	Turns        []llm.Message
	Target       Target
}

func New(chatID int64) *Session {
	return &Session{
		ChatID:     chatID,
		Spec:       prompt.DefaultSpecification(),
		BatchSize:  DefaultBatchSize,
		MaxBatches: DefaultMaxBatches,
		Target:     NewConversation{},
	}
}

// Reset starts a new chat. The specification and batching settings are kept.
func (s *Session) Reset() {
	s.AttachmentID = ""
	s.FileName = ""
	s.FileContent = ""
	s.Turns = nil
	s.Target = NewConversation{}
}

func (s *Session) SetBatchSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return fmt.Errorf("batch size must be between %d and %d", MinBatchSize, MaxBatchSize)
	}
	s.BatchSize = n
	return nil
}

func (s *Session) SetMaxBatches(n int) error {
	if n < MinMaxBatches || n > MaxMaxBatches {
		return fmt.Errorf("max batches must be between %d and %d", MinMaxBatches, MaxMaxBatches)
	}
	s.MaxBatches = n
	return nil
}

// ConversationID returns the stored id the session continues, if any.
func (s *Session) ConversationID() (string, bool) {
	if t, ok := s.Target.(ExistingConversation); ok {
		return t.ID, true
	}
	return "", false
}

type entry struct {
	mu         sync.Mutex
	sess       *Session
	lastActive time.Time
}

// Manager keeps one Session per chat.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*entry
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*entry), now: time.Now}
}

func (m *Manager) acquire(chatID int64) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[chatID]
	if !ok {
		e = &entry{sess: New(chatID)}
		m.sessions[chatID] = e
	}
	e.lastActive = m.now()
	return e
}

// Do runs fn with exclusive access to the chat's session, creating it on
// first use. Calls for the same chat never overlap.
func (m *Manager) Do(chatID int64, fn func(*Session) error) error {
	e := m.acquire(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

// Sweep drops sessions idle for longer than ttl and returns how many were
// removed. A session that is in use is never dropped.
func (m *Manager) Sweep(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-ttl)
	removed := 0
	for id, e := range m.sessions {
		if !e.lastActive.Before(cutoff) {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		delete(m.sessions, id)
		e.mu.Unlock()
		removed++
	}
	return removed
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
