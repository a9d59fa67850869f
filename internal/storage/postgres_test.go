package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"doc-chatter/internal/history"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
)

func TestJSONListEncodesNilAsEmptyArray(t *testing.T) {
	got, err := jsonList[llm.Message](nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "[]" {
		t.Fatalf("nil list encoded as %q", got)
	}
	got, err = jsonList([]llm.Message{llm.UserMessage("hi")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != `[{"role":"user","content":"hi"}]` {
		t.Fatalf("unexpected json %q", got)
	}
}

// fakeRow hands back stored column values in selectColumns order.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = []byte(r.values[i].(string))
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unexpected destination %T", d)
		}
	}
	return nil
}

func TestScanRecord(t *testing.T) {
	created := time.Unix(100, 0).UTC()
	row := fakeRow{values: []any{
		"id-1", "q", "a",
		`{"functional_context":"billing","format":"Table"}`,
		"att-1",
		`[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]`,
		`[[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]]`,
		created, created,
	}}
	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if rec.ID != "id-1" || rec.AttachmentID != "att-1" || rec.Spec.Format != prompt.FormatTable {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Messages) != 2 || len(rec.Batches) != 1 || rec.Batches[0][1].Role != llm.RoleAssistant {
		t.Fatalf("turns not decoded: %+v", rec)
	}

	row.values[5] = "not json"
	if _, err := scanRecord(row); err == nil {
		t.Fatalf("expected error for malformed messages")
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	table := "conversations_test_" + uuid.NewString()[:8]
	s, err := NewPostgresStore(ctx, dsn, table)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		s.db.ExecContext(ctx, `DROP TABLE `+s.table)
		s.Close()
	}()

	id, err := s.Insert(ctx, sampleRecord("q", time.Unix(10, 0).UTC()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	msgs := []llm.Message{llm.UserMessage("a"), llm.AssistantMessage("b"), llm.UserMessage("c")}
	if err := s.Update(ctx, id, Update{Messages: msgs, Batches: history.Split(msgs, 2), UpdatedAt: time.Unix(20, 0).UTC()}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 3 || len(got.Batches) != 2 || got.Query != "q" {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := s.Update(ctx, "missing", Update{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	recs, err := s.FindAll(ctx)
	if err != nil || len(recs) != 0 {
		t.Fatalf("want empty store, got %d records (%v)", len(recs), err)
	}
}
