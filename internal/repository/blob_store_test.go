package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/noah-isme/mural-go-api/internal/models"
)

func blobStores(t *testing.T) map[string]BlobStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "mural.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bolt, err := NewBoltBlobStore(db)
	require.NoError(t, err)

	return map[string]BlobStore{
		"redis":  NewRedisBlobStore(client),
		"bolt":   bolt,
		"memory": NewMemoryBlobStore(),
	}
}

func TestBlobStoreRoundTrip(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrBlobNotFound)

			require.NoError(t, store.Put(ctx, "k", []byte(`{"a":1}`)))
			value, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.JSONEq(t, `{"a":1}`, string(value))

			require.NoError(t, store.Delete(ctx, "k"))
			require.NoError(t, store.Delete(ctx, "k"))
			_, err = store.Get(ctx, "k")
			require.ErrorIs(t, err, ErrBlobNotFound)
		})
	}
}

func TestTranscriptRepositoryLoadSaveClear(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := NewTranscriptRepository(store)
			ctx := context.Background()

			empty, err := repo.Load(ctx, "s1")
			require.NoError(t, err)
			require.NotNil(t, empty)
			require.Empty(t, empty)

			transcript := models.Transcript{
				{Role: models.ChatRoleUser, Text: "When is the midterm?"},
				{Role: models.ChatRoleModel, Text: "On Friday.", IsLoading: false},
			}
			require.NoError(t, repo.Save(ctx, "s1", transcript))

			loaded, err := repo.Load(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, transcript, loaded)

			other, err := repo.Load(ctx, "s2")
			require.NoError(t, err)
			require.Empty(t, other)

			require.NoError(t, repo.Clear(ctx, "s1"))
			cleared, err := repo.Load(ctx, "s1")
			require.NoError(t, err)
			require.Empty(t, cleared)
		})
	}
}

func TestAiConfigRepositoryDefaultsAndOverwrites(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := NewAiConfigRepository(store, models.DefaultAiConfig())
			ctx := context.Background()

			cfg, err := repo.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, models.DefaultAiConfig(), cfg)

			require.NoError(t, repo.Save(ctx, models.AiConfig{Context: "Week 5 covers pricing."}))
			cfg, err = repo.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, "Week 5 covers pricing.", cfg.Context)
		})
	}
}

func TestRedisBlobStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisBlobStore(client)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrBlobStoreUnavailable)
}
