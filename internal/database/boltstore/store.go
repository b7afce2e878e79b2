// Package boltstore provides persistent storage using BoltDB (bbolt).
// It backs the three relay collections — config entries, user records and
// message records — and maintains a reverse index from topic id to user id.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketConfig stores runtime configuration entries keyed by name
	BucketConfig = []byte("config")

	// BucketUsers stores user relay records keyed by decimal user id
	BucketUsers = []byte("users")

	// BucketUsersByTopic indexes user ids by their admin-side topic id
	BucketUsersByTopic = []byte("users_by_topic")

	// BucketMessages stores message records keyed by "userID/messageID"
	BucketMessages = []byte("messages")
)

// Store wraps a BoltDB database and provides access to specialized stores.
type Store struct {
	db *bolt.DB
}

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// Open creates or opens a BoltDB database at the specified path.
// It creates all necessary buckets if they don't exist.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "topicbridge.db"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	// Ensure parent directory exists
	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			BucketConfig,
			BucketUsers,
			BucketUsersByTopic,
			BucketMessages,
		}

		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BoltDB instance for advanced operations.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// ConfigStore returns the config entry store backed by this database.
func (s *Store) ConfigStore() *ConfigStore {
	return &ConfigStore{db: s.db}
}

// UserStore returns the user record store backed by this database.
func (s *Store) UserStore() *UserStore {
	return &UserStore{db: s.db}
}

// MessageStore returns the message record store backed by this database.
func (s *Store) MessageStore() *MessageStore {
	return &MessageStore{db: s.db}
}
