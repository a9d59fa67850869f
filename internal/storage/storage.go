// Package storage persists conversation records and uploaded attachments.
package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"doc-chatter/internal/history"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
)

var ErrNotFound = errors.New("conversation not found")

// Record is one persisted conversation. Query and Response hold the first
// exchange and serve as the record's title in history listings.
type Record struct {
	ID           string               `json:"id" dynamodbav:"ID"`
	Query        string               `json:"query" dynamodbav:"query"`
	Response     string               `json:"response" dynamodbav:"response"`
	Spec         prompt.Specification `json:"spec" dynamodbav:"spec"`
	AttachmentID string               `json:"attachment_id,omitempty" dynamodbav:"attachment_id,omitempty"`
	Messages     []llm.Message        `json:"messages" dynamodbav:"messages"`
	Batches      []history.Batch      `json:"message_batches" dynamodbav:"message_batches"`
	CreatedAt    time.Time            `json:"timestamp" dynamodbav:"timestamp"`
	UpdatedAt    time.Time            `json:"last_update" dynamodbav:"last_update"`
}

// Turns returns the record's conversation. Records written before turn lists
// were stored only carry the first exchange.
func (r Record) Turns() []llm.Message {
	if len(r.Messages) > 0 {
		out := make([]llm.Message, len(r.Messages))
		copy(out, r.Messages)
		return out
	}
	return []llm.Message{llm.UserMessage(r.Query), llm.AssistantMessage(r.Response)}
}

// Update carries the fields rewritten on every later turn of a conversation.
type Update struct {
	Messages  []llm.Message
	Batches   []history.Batch
	UpdatedAt time.Time
}

// ConversationStore abstracts persistence of conversation records.
// FindAll returns records newest first. Implementations must be safe for
// concurrent use; concurrent updates of one record are last-write-wins.
type ConversationStore interface {
	FindAll(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Insert(ctx context.Context, rec Record) (string, error)
	Update(ctx context.Context, id string, upd Update) error
	DeleteAll(ctx context.Context) error
}

// AttachmentStore keeps raw uploaded files under an opaque id.
type AttachmentStore interface {
	Put(ctx context.Context, data []byte, name, contentType string) (string, error)
}

func sortNewestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
