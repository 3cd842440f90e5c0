// Package b2 stores activity attachments in a Backblaze B2 bucket.
package b2

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kurin/blazer/b2"
	"github.com/rs/zerolog"
)

// Config holds the B2 application key and target bucket.
type Config struct {
	AccountID      string
	ApplicationKey string
	Bucket         string
	Prefix         string
}

// Storage uploads attachments to a single bucket.
type Storage struct {
	client *b2.Client
	bucket *b2.Bucket
	prefix string
	logger zerolog.Logger
}

// New authorises against B2 and resolves the bucket.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Storage, error) {
	if cfg.AccountID == "" || cfg.ApplicationKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("b2 credentials and bucket must be provided")
	}

	client, err := b2.NewClient(ctx, cfg.AccountID, cfg.ApplicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create b2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "attachments"
	}

	return &Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "b2").Logger(),
	}, nil
}

// Upload writes the attachment under a unique key and returns its download URL.
func (s *Storage) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	key := ObjectKey(s.prefix, uuid.NewString(), name)

	var opts []b2.WriterOption
	if contentType := mime.TypeByExtension(filepath.Ext(name)); contentType != "" {
		opts = append(opts, b2.WithAttrsOption(&b2.Attrs{ContentType: contentType}))
	}

	w := s.bucket.Object(key).NewWriter(ctx, opts...)
	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	s.logger.Info().Str("key", key).Msg("attachment uploaded to b2")

	return fmt.Sprintf("%s/file/%s/%s", s.bucket.BaseURL(), s.bucket.Name(), key), nil
}

// ObjectKey builds the bucket key for an attachment.
func ObjectKey(prefix, id, name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		base = "attachment"
	}
	base = strings.ReplaceAll(base, " ", "_")
	return path.Join(prefix, id, base)
}
