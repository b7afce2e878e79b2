// Package settings exposes the runtime-mutable configuration stored in the
// config collection through typed accessors with documented defaults. The
// relay reads through this provider instead of reaching into the store or
// the environment directly.
package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config keys. Values are strings; list-valued entries hold JSON.
const (
	KeyVerificationMode  = "verification_mode"
	KeyWelcomeMessage    = "welcome_msg"
	KeyBlockKeywords     = "block_keywords"
	KeyAutoReplyRules    = "keyword_responses"
	KeyBlockThreshold    = "block_threshold"
	KeyBackupGroupID     = "backup_group_id"
	KeyAuthorizedAdmins  = "authorized_admins"
	KeyProfileLogTopicID = "user_profile_log_topic_id"
	KeyBlockLogTopicID   = "user_block_log_topic_id"
)

// Per-category forwarding toggles. Each defaults to allow.
const (
	ToggleUserForward    = "enable_user_forwarding"
	ToggleGroupForward   = "enable_group_forwarding"
	ToggleChannelForward = "enable_channel_forwarding"
	ToggleAudioVoice     = "enable_audio_forwarding"
	ToggleStickerGif     = "enable_sticker_forwarding"
	ToggleMedia          = "enable_image_forwarding"
	ToggleLink           = "enable_link_forwarding"
	ToggleText           = "enable_text_forwarding"
)

// ForwardToggles lists every per-category toggle key in menu order.
var ForwardToggles = []string{
	ToggleUserForward,
	ToggleGroupForward,
	ToggleChannelForward,
	ToggleAudioVoice,
	ToggleStickerGif,
	ToggleMedia,
	ToggleLink,
	ToggleText,
}

// Verification modes.
const (
	ModeButton = "button"
	ModeCode   = "code"
)

// DefaultWelcomeMessage is shown with the verification challenge when no
// custom welcome text is configured.
const DefaultWelcomeMessage = "To keep spam out, first-time users need to complete a quick verification."

// DefaultBlockThreshold is the strike count at which a user is auto-blocked.
const DefaultBlockThreshold = 5

// AutoReplyRule is one canned-response rule. Rules are evaluated in stored
// order; the first keyword-pattern match wins.
type AutoReplyRule struct {
	ID       int64  `json:"id"` // creation time in unix milliseconds
	Keywords string `json:"keywords"`
	Response string `json:"response"`
}

// Store is the config collection access the provider needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Service reads and writes runtime settings.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates a settings provider over the given config store.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns the raw value for key, or def when unset.
func (s *Service) Get(ctx context.Context, key, def string) string {
	value, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("settings: read failed")
		return def
	}
	if !found {
		return def
	}
	return value
}

// Set stores the raw value for key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	return s.store.Put(ctx, key, value)
}

// Delete removes the entry for key.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// VerificationMode returns the configured challenge mode, button by default.
func (s *Service) VerificationMode(ctx context.Context) string {
	mode := s.Get(ctx, KeyVerificationMode, ModeButton)
	if mode != ModeButton && mode != ModeCode {
		return ModeButton
	}
	return mode
}

// WelcomeMessage returns the welcome text shown with the challenge.
func (s *Service) WelcomeMessage(ctx context.Context) string {
	return s.Get(ctx, KeyWelcomeMessage, DefaultWelcomeMessage)
}

// ForwardAllowed reports whether the given content-category toggle permits
// forwarding. Unset toggles allow.
func (s *Service) ForwardAllowed(ctx context.Context, toggleKey string) bool {
	return strings.EqualFold(s.Get(ctx, toggleKey, "true"), "true")
}

// SetForwardAllowed flips one content-category toggle.
func (s *Service) SetForwardAllowed(ctx context.Context, toggleKey string, allowed bool) error {
	return s.Set(ctx, toggleKey, strconv.FormatBool(allowed))
}

// BlockThreshold returns the auto-block strike threshold.
func (s *Service) BlockThreshold(ctx context.Context) int {
	raw := s.Get(ctx, KeyBlockThreshold, strconv.Itoa(DefaultBlockThreshold))
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultBlockThreshold
	}
	return n
}

// BlockKeywords returns the stored block-keyword patterns in insertion
// order. A malformed stored list is logged and treated as empty.
func (s *Service) BlockKeywords(ctx context.Context) []string {
	raw := s.Get(ctx, KeyBlockKeywords, "[]")
	var keywords []string
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		s.logger.Error().Err(err).Msg("settings: malformed block keyword list")
		return nil
	}
	return keywords
}

// AddBlockKeyword appends a pattern unless it is empty or already present.
// It reports whether the list changed.
func (s *Service) AddBlockKeyword(ctx context.Context, keyword string) (bool, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false, nil
	}
	keywords := s.BlockKeywords(ctx)
	for _, k := range keywords {
		if k == keyword {
			return false, nil
		}
	}
	keywords = append(keywords, keyword)
	return true, s.putJSON(ctx, KeyBlockKeywords, keywords)
}

// DeleteBlockKeyword removes an exact pattern from the list.
func (s *Service) DeleteBlockKeyword(ctx context.Context, keyword string) error {
	keywords := s.BlockKeywords(ctx)
	kept := keywords[:0]
	for _, k := range keywords {
		if k != keyword {
			kept = append(kept, k)
		}
	}
	return s.putJSON(ctx, KeyBlockKeywords, kept)
}

// AutoReplyRules returns the stored auto-reply rules in insertion order.
func (s *Service) AutoReplyRules(ctx context.Context) []AutoReplyRule {
	raw := s.Get(ctx, KeyAutoReplyRules, "[]")
	var rules []AutoReplyRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		s.logger.Error().Err(err).Msg("settings: malformed auto-reply rule list")
		return nil
	}
	return rules
}

// AddAutoReplyRule appends a rule, assigning a creation-time id. Ids added
// in the same millisecond are bumped to stay unique.
func (s *Service) AddAutoReplyRule(ctx context.Context, keywords, response string) (*AutoReplyRule, error) {
	existing := s.AutoReplyRules(ctx)
	id := time.Now().UnixMilli()
	for _, r := range existing {
		if r.ID >= id {
			id = r.ID + 1
		}
	}
	rule := AutoReplyRule{
		ID:       id,
		Keywords: keywords,
		Response: response,
	}
	rules := append(existing, rule)
	if err := s.putJSON(ctx, KeyAutoReplyRules, rules); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteAutoReplyRule removes the rule with the given id.
func (s *Service) DeleteAutoReplyRule(ctx context.Context, id int64) error {
	rules := s.AutoReplyRules(ctx)
	kept := rules[:0]
	for _, r := range rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return s.putJSON(ctx, KeyAutoReplyRules, kept)
}

// BackupGroupID returns the configured backup destination, 0 when unset.
func (s *Service) BackupGroupID(ctx context.Context) int64 {
	raw := strings.TrimSpace(s.Get(ctx, KeyBackupGroupID, ""))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Error().Str("value", raw).Msg("settings: malformed backup group id")
		return 0
	}
	return id
}

// AuthorizedAdmins returns the ids granted admin rights through
// configuration, in addition to the primary admins from the environment.
func (s *Service) AuthorizedAdmins(ctx context.Context) []int64 {
	raw := s.Get(ctx, KeyAuthorizedAdmins, "[]")
	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Error().Err(err).Msg("settings: malformed authorized admin list")
		return nil
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		id, err := strconv.ParseInt(strings.TrimSpace(e), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// SetAuthorizedAdmins replaces the authorized-admin list.
func (s *Service) SetAuthorizedAdmins(ctx context.Context, ids []string) error {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	return s.putJSON(ctx, KeyAuthorizedAdmins, cleaned)
}

// LogTopicID returns the stored singleton log-topic id for key
// (KeyProfileLogTopicID or KeyBlockLogTopicID), 0 when unset.
func (s *Service) LogTopicID(ctx context.Context, key string) int64 {
	raw := strings.TrimSpace(s.Get(ctx, key, ""))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// SetLogTopicID stores a singleton log-topic id.
func (s *Service) SetLogTopicID(ctx context.Context, key string, id int64) error {
	return s.Set(ctx, key, strconv.FormatInt(id, 10))
}

// ClearLogTopicID deletes a stale log-topic pointer so the topic gets
// recreated on next use.
func (s *Service) ClearLogTopicID(ctx context.Context, key string) error {
	return s.Delete(ctx, key)
}

func (s *Service) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(data))
}
