package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore keeps conversations in a single table with JSONB columns for
// the specification, turns and batches.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	connStr := dsn
	if !strings.Contains(dsn, "sslmode=") {
		if strings.Contains(dsn, "?") {
			connStr += "&sslmode=disable"
		} else {
			connStr += "?sslmode=disable"
		}
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		id            TEXT PRIMARY KEY,
		query         TEXT NOT NULL,
		response      TEXT NOT NULL,
		spec          JSONB NOT NULL,
		attachment_id TEXT NOT NULL DEFAULT '',
		messages      JSONB NOT NULL,
		batches       JSONB NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

const selectColumns = `id, query, response, spec, attachment_id, messages, batches, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                 Record
		spec, msgs, batches []byte
	)
	if err := row.Scan(&rec.ID, &rec.Query, &rec.Response, &spec, &rec.AttachmentID, &msgs, &batches, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(spec, &rec.Spec); err != nil {
		return Record{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := json.Unmarshal(msgs, &rec.Messages); err != nil {
		return Record{}, fmt.Errorf("decode messages: %w", err)
	}
	if err := json.Unmarshal(batches, &rec.Batches); err != nil {
		return Record{}, fmt.Errorf("decode batches: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+s.table+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM `+s.table+` WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	spec, err := json.Marshal(rec.Spec)
	if err != nil {
		return "", err
	}
	msgs, err := jsonList(rec.Messages)
	if err != nil {
		return "", err
	}
	batches, err := jsonList(rec.Batches)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO `+s.table+` (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Query, rec.Response, string(spec), rec.AttachmentID, msgs, batches, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, upd Update) error {
	msgs, err := jsonList(upd.Messages)
	if err != nil {
		return err
	}
	batches, err := jsonList(upd.Batches)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+s.table+` SET messages = $2, batches = $3, updated_at = $4 WHERE id = $1`,
		id, msgs, batches, upd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table); err != nil {
		return fmt.Errorf("delete conversations: %w", err)
	}
	return nil
}

// jsonList encodes a nil slice as [] so the NOT NULL JSONB columns never hold
// null. Values are passed as text: lib/pq sends []byte parameters as bytea.
func jsonList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}
