package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldKey names a configuration field an admin can be prompted for. The set
// is closed; input handling switches exhaustively over it.
type FieldKey string

const (
	FieldWelcomeMessage   FieldKey = "welcome_msg"
	FieldBlockThreshold   FieldKey = "block_threshold"
	FieldBackupGroupID    FieldKey = "backup_group_id"
	FieldAuthorizedAdmins FieldKey = "authorized_admins"
	FieldBlockKeywordAdd  FieldKey = "block_keyword_add"
	FieldAutoReplyAdd     FieldKey = "auto_reply_add"
)

// Valid reports whether k is one of the known field keys.
func (k FieldKey) Valid() bool {
	switch k {
	case FieldWelcomeMessage, FieldBlockThreshold, FieldBackupGroupID,
		FieldAuthorizedAdmins, FieldBlockKeywordAdd, FieldAutoReplyAdd:
		return true
	}
	return false
}

// AdminState is the tagged "awaiting input" state for one admin. Absence of
// a stored state means idle.
type AdminState struct {
	Awaiting FieldKey `json:"awaiting"`
}

func adminStateKey(adminID int64) string {
	return "admin_state:" + strconv.FormatInt(adminID, 10)
}

// AdminState returns the pending input state for adminID, or nil when idle.
// A stored state that fails to parse is treated as corrupt: it is cleared
// and an error returned so the caller can tell the admin.
func (s *Service) AdminState(ctx context.Context, adminID int64) (*AdminState, error) {
	raw, found, err := s.store.Get(ctx, adminStateKey(adminID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var state AdminState
	if err := json.Unmarshal([]byte(raw), &state); err != nil || !state.Awaiting.Valid() {
		_ = s.store.Delete(ctx, adminStateKey(adminID))
		return nil, fmt.Errorf("corrupt admin state reset for admin %d", adminID)
	}
	return &state, nil
}

// SetAdminState marks adminID as awaiting input for the given field.
func (s *Service) SetAdminState(ctx context.Context, adminID int64, field FieldKey) error {
	data, err := json.Marshal(AdminState{Awaiting: field})
	if err != nil {
		return err
	}
	return s.store.Put(ctx, adminStateKey(adminID), string(data))
}

// ClearAdminState returns adminID to idle.
func (s *Service) ClearAdminState(ctx context.Context, adminID int64) error {
	return s.store.Delete(ctx, adminStateKey(adminID))
}
