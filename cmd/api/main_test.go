package main

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mural-go-api/internal/config"
	"github.com/noah-isme/mural-go-api/internal/database"
)

func TestRunClosesResourcesOnStartupFailure(t *testing.T) {
	boltPath := filepath.Join(t.TempDir(), "history.db")
	cfg := config.Config{
		AppName:           "Mural API",
		StoreBackend:      config.StoreMemory,
		HistoryBackend:    config.HistoryBolt,
		BoltPath:          boltPath,
		AttachmentBackend: config.AttachmentCloudinary,
		AIProvider:        config.ProviderGemini,
		JWTSecret:         "secret",
		Location:          time.UTC,
	}

	err := run(cfg, zerolog.New(io.Discard))
	require.ErrorContains(t, err, "attachment storage")

	// bolt holds an exclusive file lock until closed.
	db, err := database.OpenBolt(boltPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenBlobStoreNeedsRedisClient(t *testing.T) {
	var closers []io.Closer
	_, err := openBlobStore(config.Config{HistoryBackend: config.HistoryRedis}, nil, &closers)
	require.Error(t, err)
	require.Empty(t, closers)
}
