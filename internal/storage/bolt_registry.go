package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	boltBucketRegistry = "registry"      // key: boltKeyRepos -> []WatchedRepository JSON
	boltKeyRepos       = "watched_repos" // the whole list lives under one key
)

// BoltRegistry stores the watch list as a single JSON document in bbolt.
type BoltRegistry struct {
	db *bbolt.DB
}

// NewBoltRegistry opens (or creates) the bbolt file at path.
func NewBoltRegistry(path string) (*BoltRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketRegistry))
		return err
	}); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltRegistry{db: db}, nil
}

// Get returns the stored list, or nil when nothing was stored yet.
func (b *BoltRegistry) Get(_ context.Context) ([]WatchedRepository, error) {
	var repos []WatchedRepository

	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		repos, err = decodeRepos(tx.Bucket([]byte(boltBucketRegistry)).Get([]byte(boltKeyRepos)))
		return err
	})
	if err != nil {
		return nil, err
	}

	return repos, nil
}

// Put overwrites the stored list in one transaction.
func (b *BoltRegistry) Put(ctx context.Context, repos []WatchedRepository) error {
	return b.Update(ctx, func([]WatchedRepository) ([]WatchedRepository, error) {
		return repos, nil
	})
}

// Update applies fn to the stored list inside a single read-write transaction.
func (b *BoltRegistry) Update(_ context.Context, fn UpdateFunc) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucketRegistry))

		current, err := decodeRepos(bucket.Get([]byte(boltKeyRepos)))
		if err != nil {
			return err
		}
		repos, err := fn(current)
		if err != nil {
			return err
		}
		if repos == nil {
			repos = []WatchedRepository{}
		}

		data, err := json.Marshal(repos)
		if err != nil {
			return fmt.Errorf("failed to encode watched repos: %w", err)
		}
		return bucket.Put([]byte(boltKeyRepos), data)
	})
}

// decodeRepos decodes a stored list. Bolt values are only valid inside the
// transaction, so data is fully decoded before returning.
func decodeRepos(data []byte) ([]WatchedRepository, error) {
	if data == nil {
		return nil, nil
	}

	var repos []WatchedRepository
	if err := json.Unmarshal(data, &repos); err != nil {
		return nil, fmt.Errorf("failed to decode watched repos: %w", err)
	}
	if len(repos) == 0 {
		return nil, nil
	}
	for i := range repos {
		repos[i].normalize()
	}
	return repos, nil
}

// Close closes the bolt database.
func (b *BoltRegistry) Close() error {
	return b.db.Close()
}
