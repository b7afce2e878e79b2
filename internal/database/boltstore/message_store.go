package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"topicbridge/internal/relay"

	bolt "go.etcd.io/bbolt"
)

// MessageStore provides persistent storage for relayed-message records used
// by edit reconciliation. Records are overwritten in place when a message is
// edited; they are never deleted.
type MessageStore struct {
	db *bolt.DB
}

func messageKey(userID, messageID int64) []byte {
	return []byte(strconv.FormatInt(userID, 10) + "/" + strconv.FormatInt(messageID, 10))
}

// Put stores or overwrites the record for (userID, messageID).
func (s *MessageStore) Put(ctx context.Context, userID, messageID int64, rec relay.MessageRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketMessages)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketMessages)
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal message record: %w", err)
		}

		return bucket.Put(messageKey(userID, messageID), data)
	})
}

// Get retrieves the record for (userID, messageID), or (nil, nil) if the
// message was never recorded.
func (s *MessageStore) Get(ctx context.Context, userID, messageID int64) (*relay.MessageRecord, error) {
	var rec *relay.MessageRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketMessages)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(messageKey(userID, messageID))
		if data == nil {
			return nil
		}

		rec = &relay.MessageRecord{}
		return json.Unmarshal(data, rec)
	})

	return rec, err
}
