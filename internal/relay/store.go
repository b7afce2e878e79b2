package relay

import "context"

// UserStore persists per-user relay records. Lookups that find nothing
// return (nil, nil). Implementations must be safe for concurrent use.
type UserStore interface {
	// GetOrCreate returns the stored record for id, creating a fresh one
	// (state new, nothing set) if none exists yet.
	GetOrCreate(ctx context.Context, id int64) (*User, error)

	// Get returns the stored record for id, or nil if unknown.
	Get(ctx context.Context, id int64) (*User, error)

	// Put stores the full record and keeps the topic index in sync.
	Put(ctx context.Context, user *User) error

	// FindByTopic resolves the user owning the given admin-side topic, or
	// nil if the topic maps to nobody.
	FindByTopic(ctx context.Context, topicID int64) (*User, error)
}

// MessageStore persists MessageRecords keyed by (user id, message id).
type MessageStore interface {
	Put(ctx context.Context, userID, messageID int64, rec MessageRecord) error
	Get(ctx context.Context, userID, messageID int64) (*MessageRecord, error)
}
