package database

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// OpenBolt opens the local bolt file used for transcripts and settings.
func OpenBolt(path string) (*bbolt.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path must not be empty")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	return db, nil
}
