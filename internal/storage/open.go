package storage

import (
	"context"
	"fmt"
	"log"

	"doc-chatter/internal/config"
)

// OpenConversationStore builds the configured conversation backend. The
// returned func releases its resources.
func OpenConversationStore(ctx context.Context, cfg *config.StorageConfig) (ConversationStore, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case "file":
		s, err := NewFileStore(cfg.StoreFilePath)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "dynamodb":
		s, err := NewDynamoStore(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, noop, fmt.Errorf("POSTGRES_DSN is not set")
		}
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN, cfg.PostgresTable)
		if err != nil {
			return nil, noop, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Printf("failed to close postgres: %v", err)
			}
		}, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

// OpenAttachmentStore builds the configured attachment backend.
func OpenAttachmentStore(ctx context.Context, cfg *config.StorageConfig) (AttachmentStore, error) {
	switch cfg.AttachmentBackend {
	case "dir":
		s, err := NewDirStore(cfg.AttachmentDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is not set")
		}
		s, err := NewS3Store(ctx, cfg.AWSRegion, cfg.S3Endpoint, cfg.S3Bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown attachment backend: %s", cfg.AttachmentBackend)
	}
}
