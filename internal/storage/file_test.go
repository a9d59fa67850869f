package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"doc-chatter/internal/history"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
)

func sampleRecord(query string, created time.Time) Record {
	msgs := []llm.Message{llm.UserMessage(query), llm.AssistantMessage("answer to " + query)}
	return Record{
		Query:     query,
		Response:  "answer to " + query,
		Spec:      prompt.Specification{FunctionalContext: "billing", Format: prompt.FormatTable},
		Messages:  msgs,
		Batches:   history.Split(msgs, 5),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestFileStore_InsertFindAll(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data", "conversations.jsonl"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}

	id1, err := s.Insert(ctx, sampleRecord("first", time.Unix(1, 0).UTC()))
	if err != nil {
		t.Fatalf("insert1: %v", err)
	}
	id2, err := s.Insert(ctx, sampleRecord("second", time.Unix(2, 0).UTC()))
	if err != nil {
		t.Fatalf("insert2: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Fatalf("bad ids: %q %q", id1, id2)
	}

	recs, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2, got %d", len(recs))
	}
	if recs[0].ID != id2 || recs[1].ID != id1 {
		t.Fatalf("not newest first: %q %q", recs[0].Query, recs[1].Query)
	}
	if recs[1].Spec.Format != prompt.FormatTable || len(recs[1].Batches) != 1 {
		t.Fatalf("record fields lost: %+v", recs[1])
	}
}

func TestFileStore_UpdateAndGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "c.jsonl"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	id, err := s.Insert(ctx, sampleRecord("q", time.Unix(1, 0).UTC()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	msgs := append(sampleRecord("q", time.Time{}).Messages, llm.UserMessage("more"), llm.AssistantMessage("sure"))
	now := time.Unix(50, 0).UTC()
	if err := s.Update(ctx, id, Update{Messages: msgs, Batches: history.Split(msgs, 3), UpdatedAt: now}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rec.Messages) != 4 || len(rec.Batches) != 2 || !rec.UpdatedAt.Equal(now) {
		t.Fatalf("update not applied: %+v", rec)
	}
	if rec.Query != "q" || !rec.CreatedAt.Equal(time.Unix(1, 0)) {
		t.Fatalf("update touched immutable fields: %+v", rec)
	}

	if err := s.Update(ctx, "missing", Update{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFileStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "c.jsonl"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Insert(ctx, sampleRecord("q", time.Now())); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	recs, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("want empty store, got %d", len(recs))
	}
	if _, err := s.Insert(ctx, sampleRecord("after", time.Now())); err != nil {
		t.Fatalf("insert after clear: %v", err)
	}
}

func TestRecordTurns_LegacyRecord(t *testing.T) {
	rec := Record{Query: "hello", Response: "hi"}
	turns := rec.Turns()
	if len(turns) != 2 || turns[0] != llm.UserMessage("hello") || turns[1] != llm.AssistantMessage("hi") {
		t.Fatalf("unexpected legacy turns: %+v", turns)
	}
}
