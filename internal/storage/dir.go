package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DirStore writes attachments into a local directory.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure attachment dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Put stores data as <uuid><ext>; the name itself is not trusted as a path.
func (s *DirStore) Put(ctx context.Context, data []byte, name, contentType string) (string, error) {
	id := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(name)))
	if err := os.WriteFile(filepath.Join(s.dir, id), data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return id, nil
}

// Open returns the stored bytes for id.
func (s *DirStore) Open(id string) ([]byte, error) {
	if id != filepath.Base(id) {
		return nil, fmt.Errorf("invalid attachment id %q", id)
	}
	return os.ReadFile(filepath.Join(s.dir, id))
}
