// Package relay implements the user-session relay engine: per-user
// verification state, inbound filtering, topic-based message relay between
// end-users and the admin group, and moderation status synchronization.
package relay

// UserState tracks where a user is in the verification flow.
type UserState string

const (
	StateNew      UserState = "new"
	StatePending  UserState = "pending_verification"
	StateVerified UserState = "verified"
)

// Profile holds the identity details captured on first contact.
type Profile struct {
	DisplayName  string `json:"display_name"`
	Handle       string `json:"handle,omitempty"`
	FirstContact int64  `json:"first_contact"` // unix seconds
}

// User is the per-user relay record. The zero value of every optional field
// (TopicID, message refs, VerificationCode, Profile) means "not set".
type User struct {
	ID               int64     `json:"id"`
	State            UserState `json:"state"`
	Blocked          bool      `json:"blocked"`
	Muted            bool      `json:"muted"`
	StrikeCount      int       `json:"strike_count"`
	TopicID          int64     `json:"topic_id,omitempty"`
	InfoCardMsgID    int64     `json:"info_card_msg_id,omitempty"`
	BlockLogMsgID    int64     `json:"block_log_msg_id,omitempty"`
	ProfileLogMsgID  int64     `json:"profile_log_msg_id,omitempty"`
	VerificationCode string    `json:"verification_code,omitempty"`
	Profile          *Profile  `json:"profile,omitempty"`
}

// MessageRecord remembers the last known content of a relayed message so an
// edit notification can show what it said before. Keyed by (user id, message
// id of the chat the message was typed in).
type MessageRecord struct {
	Text   string `json:"text"`
	SentAt int64  `json:"sent_at"` // unix seconds
}
