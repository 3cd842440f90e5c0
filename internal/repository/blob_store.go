package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"
)

var (
	// ErrBlobNotFound is returned when no value is stored under a key.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobStoreUnavailable wraps backend failures of a BlobStore.
	ErrBlobStoreUnavailable = errors.New("blob store unavailable")
)

// BlobStore keeps small keyed JSON documents that are read and written wholesale.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type redisBlobStore struct {
	client *redis.Client
}

// NewRedisBlobStore stores blobs as plain redis strings without expiry.
func NewRedisBlobStore(client *redis.Client) BlobStore {
	return &redisBlobStore{client: client}
}

func (s *redisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w: %w", key, ErrBlobStoreUnavailable, err)
	}
	return value, nil
}

func (s *redisBlobStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w: %w", key, ErrBlobStoreUnavailable, err)
	}
	return nil
}

func (s *redisBlobStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w: %w", key, ErrBlobStoreUnavailable, err)
	}
	return nil
}

// BoltBucket is the bucket holding every blob in a bolt file.
var BoltBucket = []byte("mural")

type boltBlobStore struct {
	db *bbolt.DB
}

// NewBoltBlobStore stores blobs in a single bucket of a local bolt database.
func NewBoltBlobStore(db *bbolt.DB) (BlobStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(BoltBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &boltBlobStore{db: db}, nil
}

func (s *boltBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(BoltBucket).Get([]byte(key))
		if raw == nil {
			return ErrBlobNotFound
		}
		// bolt values are only valid inside the transaction.
		value = append([]byte(nil), raw...)
		return nil
	})
	if errors.Is(err, ErrBlobNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("bolt get %s: %w: %w", key, ErrBlobStoreUnavailable, err)
	}
	return value, nil
}

func (s *boltBlobStore) Put(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(BoltBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("bolt put %s: %w: %w", key, ErrBlobStoreUnavailable, err)
	}
	return nil
}

func (s *boltBlobStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(BoltBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete %s: %w: %w", key, ErrBlobStoreUnavailable, err)
	}
	return nil
}

type memoryBlobStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryBlobStore keeps blobs in process memory.
func NewMemoryBlobStore() BlobStore {
	return &memoryBlobStore{values: make(map[string][]byte)}
}

func (s *memoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *memoryBlobStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
