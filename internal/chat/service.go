package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"doc-chatter/internal/document"
	"doc-chatter/internal/history"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
	"doc-chatter/internal/session"
	"doc-chatter/internal/storage"
)

// Reply is the outcome of one submission.
type Reply struct {
	Parts          []string
	ConversationID string
}

// Service runs submissions for a session and keeps the conversation store in
// step with it. Callers must hold the session exclusively (session.Manager.Do).
type Service struct {
	driver      *Driver
	store       storage.ConversationStore
	attachments storage.AttachmentStore
	now         func() time.Time
}

func NewService(driver *Driver, store storage.ConversationStore, attachments storage.AttachmentStore) *Service {
	return &Service{driver: driver, store: store, attachments: attachments, now: time.Now}
}

// Submit sends text to the model with the session's history and records the
// exchange. Model failures come back as a single error part, not as an error.
func (s *Service) Submit(ctx context.Context, sess *session.Session, text string) (Reply, error) {
	prior := history.Split(sess.Turns, sess.BatchSize)
	msgs, system := prompt.Assemble(prompt.Input{
		Prompt:      text,
		Prior:       prior,
		Spec:        sess.Spec,
		FileContent: sess.FileContent,
		MaxBatches:  sess.MaxBatches,
	})

	raw := s.driver.Converse(ctx, msgs, system)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		parts = append(parts, Clean(p))
	}

	sess.Turns = append(sess.Turns, llm.UserMessage(text))
	for _, p := range parts {
		sess.Turns = append(sess.Turns, llm.AssistantMessage(p))
	}

	id, err := s.persist(ctx, sess, text, parts)
	if err != nil {
		return Reply{Parts: parts}, err
	}
	return Reply{Parts: parts, ConversationID: id}, nil
}

func (s *Service) persist(ctx context.Context, sess *session.Session, query string, parts []string) (string, error) {
	now := s.now().UTC()
	batches := history.Split(sess.Turns, sess.BatchSize)

	if id, ok := sess.ConversationID(); ok {
		err := s.store.Update(ctx, id, storage.Update{
			Messages:  sess.Turns,
			Batches:   batches,
			UpdatedAt: now,
		})
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("update conversation %s: %w", id, err)
		}
		// the record was cleared while this chat was still using it
		log.Printf("conversation %s no longer exists, storing a new one", id)
	}

	id, err := s.store.Insert(ctx, storage.Record{
		Query:        query,
		Response:     strings.Join(parts, "\n\n"),
		Spec:         sess.Spec,
		AttachmentID: sess.AttachmentID,
		Messages:     sess.Turns,
		Batches:      batches,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	sess.Target = session.ExistingConversation{ID: id}
	return id, nil
}

// Load makes the stored conversation id the session's current one.
func (s *Service) Load(ctx context.Context, sess *session.Session, id string) (storage.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return storage.Record{}, err
	}
	sess.Turns = rec.Turns()
	sess.Target = session.ExistingConversation{ID: rec.ID}
	sess.AttachmentID = rec.AttachmentID
	return rec, nil
}

// List returns stored conversations, newest first.
func (s *Service) List(ctx context.Context) ([]storage.Record, error) {
	return s.store.FindAll(ctx)
}

// ClearAll deletes every stored conversation.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Attach stores an uploaded document and makes its text the session's file
// content. Unsupported or unreadable files leave the session unchanged.
func (s *Service) Attach(ctx context.Context, sess *session.Session, name, contentType string, data []byte) error {
	text, err := document.Extract(data, name, contentType)
	if err != nil {
		return err
	}
	id, err := s.attachments.Put(ctx, data, name, document.Kind(name, contentType))
	if err != nil {
		return fmt.Errorf("store attachment: %w", err)
	}
	log.Printf("attachment %s stored for chat %d (%d chars extracted)", id, sess.ChatID, len([]rune(text)))

	sess.AttachmentID = id
	sess.FileName = name
	sess.FileContent = text
	return nil
}
