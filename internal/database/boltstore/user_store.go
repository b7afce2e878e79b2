package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"topicbridge/internal/relay"

	bolt "go.etcd.io/bbolt"
)

// UserStore provides persistent storage for user relay records.
type UserStore struct {
	db *bolt.DB
}

func userKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

// GetOrCreate returns the record for id, inserting a fresh record with
// default state if the user has never been seen before.
func (s *UserStore) GetOrCreate(ctx context.Context, id int64) (*relay.User, error) {
	var user *relay.User

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketUsers)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketUsers)
		}

		if data := bucket.Get(userKey(id)); data != nil {
			user = &relay.User{}
			return json.Unmarshal(data, user)
		}

		user = &relay.User{ID: id, State: relay.StateNew}
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		return bucket.Put(userKey(id), data)
	})

	return user, err
}

// Get retrieves a user record by id. Returns (nil, nil) for unknown users.
func (s *UserStore) Get(ctx context.Context, id int64) (*relay.User, error) {
	var user *relay.User

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketUsers)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(userKey(id))
		if data == nil {
			return nil
		}

		user = &relay.User{}
		return json.Unmarshal(data, user)
	})

	return user, err
}

// Put stores the full user record. The topic index is rewritten in the same
// transaction: the user's previous topic mapping (if any) is removed and the
// current one, when set, points back at the user.
func (s *UserStore) Put(ctx context.Context, user *relay.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(BucketUsers)
		if users == nil {
			return fmt.Errorf("bucket not found: %s", BucketUsers)
		}
		index := tx.Bucket(BucketUsersByTopic)
		if index == nil {
			return fmt.Errorf("bucket not found: %s", BucketUsersByTopic)
		}

		// Drop the stale index entry when the topic changed.
		if prev := users.Get(userKey(user.ID)); prev != nil {
			var old relay.User
			if err := json.Unmarshal(prev, &old); err == nil &&
				old.TopicID != 0 && old.TopicID != user.TopicID {
				if err := index.Delete(userKey(old.TopicID)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		if err := users.Put(userKey(user.ID), data); err != nil {
			return err
		}

		if user.TopicID != 0 {
			return index.Put(userKey(user.TopicID), userKey(user.ID))
		}
		return nil
	})
}

// FindByTopic resolves the user owning topicID via the reverse index.
// Returns (nil, nil) when the topic maps to nobody.
func (s *UserStore) FindByTopic(ctx context.Context, topicID int64) (*relay.User, error) {
	var user *relay.User

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(BucketUsersByTopic)
		if index == nil {
			return nil
		}

		idData := index.Get(userKey(topicID))
		if idData == nil {
			return nil
		}

		users := tx.Bucket(BucketUsers)
		if users == nil {
			return nil
		}
		data := users.Get(idData)
		if data == nil {
			return nil
		}

		user = &relay.User{}
		return json.Unmarshal(data, user)
	})

	return user, err
}
