package boltstore

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// ConfigStore provides persistent storage for runtime configuration entries.
// Values are plain strings; list-valued settings are stored as JSON by the
// settings layer.
type ConfigStore struct {
	db *bolt.DB
}

// Get returns the value for key and whether it was present.
func (s *ConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketConfig)
		if bucket == nil {
			return nil
		}

		if data := bucket.Get([]byte(key)); data != nil {
			value = string(data)
			found = true
		}
		return nil
	})

	return value, found, err
}

// Put stores the value for key, creating the entry on first write.
func (s *ConfigStore) Put(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketConfig)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketConfig)
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

// Delete removes the entry for key. Deleting an absent key is a no-op.
func (s *ConfigStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketConfig)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}
