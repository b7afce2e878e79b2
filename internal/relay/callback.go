package relay

import (
	"context"
	"strconv"
	"strings"

	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

// callbackKind enumerates every inline-button action the bot emits. Data
// strings are parsed into exactly one of these; anything else is answered
// and dropped.
type callbackKind int

const (
	cbUnknown callbackKind = iota
	cbVerify
	cbMenu       // open a menu section
	cbToggleMode // flip verification mode
	cbSetFlag    // set one forwarding toggle
	cbEditField  // prompt for a config value
	cbClearField // reset a config value to default
	cbAddRule    // prompt for a new keyword / auto-reply rule
	cbDeleteRule // delete one rule
	cbCancel     // abandon a pending prompt
	cbModeration // block/unblock/mute/unmute
	cbPinCard
)

// callbackAction is one parsed button tap.
type callbackAction struct {
	Kind callbackKind

	Section string             // cbMenu
	Flag    string             // cbSetFlag: toggle key
	Enable  bool               // cbSetFlag
	Field   settings.FieldKey  // cbEditField, cbClearField, cbAddRule
	RuleKey string             // cbDeleteRule: settings key the rule lives under
	RuleRef string             // cbDeleteRule: rule id or keyword text
	ModKind moderationKind     // cbModeration
	UserID  int64              // cbModeration, cbPinCard
}

// parseCallback maps a callback data string onto the closed action set.
func parseCallback(data string) callbackAction {
	if data == callbackVerify {
		return callbackAction{Kind: cbVerify}
	}
	if data == "cancel" {
		return callbackAction{Kind: cbCancel}
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return callbackAction{Kind: cbUnknown}
	}
	head, rest := parts[0], parts[1]

	switch head {
	case "menu":
		return callbackAction{Kind: cbMenu, Section: rest}

	case "block", "unblock", "mute", "unmute":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return callbackAction{Kind: cbUnknown}
		}
		return callbackAction{Kind: cbModeration, ModKind: moderationKind(head), UserID: id}

	case "pin_card":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return callbackAction{Kind: cbUnknown}
		}
		return callbackAction{Kind: cbPinCard, UserID: id}

	case "cfg":
		sub := strings.SplitN(rest, ":", 2)
		switch sub[0] {
		case "mode":
			return callbackAction{Kind: cbToggleMode}
		case "flag":
			if len(sub) != 2 {
				return callbackAction{Kind: cbUnknown}
			}
			kv := strings.SplitN(sub[1], ":", 2)
			if len(kv) != 2 || !isForwardToggle(kv[0]) {
				return callbackAction{Kind: cbUnknown}
			}
			return callbackAction{Kind: cbSetFlag, Flag: kv[0], Enable: kv[1] == "on"}
		case "edit", "clear":
			if len(sub) != 2 {
				return callbackAction{Kind: cbUnknown}
			}
			field := settings.FieldKey(sub[1])
			if !field.Valid() {
				return callbackAction{Kind: cbUnknown}
			}
			kind := cbEditField
			if sub[0] == "clear" {
				kind = cbClearField
			}
			return callbackAction{Kind: kind, Field: field}
		}
		return callbackAction{Kind: cbUnknown}

	case "rule":
		sub := strings.SplitN(rest, ":", 3)
		switch {
		case sub[0] == "add" && len(sub) == 2:
			field := settings.FieldKey(sub[1])
			if field != settings.FieldBlockKeywordAdd && field != settings.FieldAutoReplyAdd {
				return callbackAction{Kind: cbUnknown}
			}
			return callbackAction{Kind: cbAddRule, Field: field}
		case sub[0] == "del" && len(sub) == 3:
			if sub[1] != settings.KeyBlockKeywords && sub[1] != settings.KeyAutoReplyRules {
				return callbackAction{Kind: cbUnknown}
			}
			return callbackAction{Kind: cbDeleteRule, RuleKey: sub[1], RuleRef: sub[2]}
		}
		return callbackAction{Kind: cbUnknown}
	}

	return callbackAction{Kind: cbUnknown}
}

func isForwardToggle(key string) bool {
	for _, t := range settings.ForwardToggles {
		if t == key {
			return true
		}
	}
	return false
}

// handleCallback authorizes and dispatches one inline-button tap.
func (s *Service) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	if cq.From == nil {
		return
	}
	action := parseCallback(cq.Data)

	// Verification buttons live in user chats; everything else is admin-only.
	if action.Kind == cbVerify {
		s.handleVerifyButton(ctx, cq)
		return
	}
	if !s.isAdmin(ctx, cq.From.ID) {
		s.answerCallback(ctx, cq.ID, "⛔ Not authorized.", true)
		return
	}

	// Moderation and pinning only make sense on cards inside the admin group.
	if action.Kind == cbModeration || action.Kind == cbPinCard {
		if cq.Message == nil || cq.Message.Chat == nil || cq.Message.Chat.ID != s.cfg.AdminGroupID {
			s.answerCallback(ctx, cq.ID, "⛔ This button only works inside the admin group.", true)
			return
		}
	}

	switch action.Kind {
	case cbModeration:
		s.handleModerationAction(ctx, cq, action.ModKind, action.UserID)
	case cbPinCard:
		s.handlePin(ctx, cq, action.UserID)
	case cbMenu:
		s.handleMenuCallback(ctx, cq, action.Section)
	case cbToggleMode:
		s.handleToggleMode(ctx, cq)
	case cbSetFlag:
		s.handleSetFlag(ctx, cq, action.Flag, action.Enable)
	case cbEditField:
		s.handleEditPrompt(ctx, cq, action.Field)
	case cbClearField:
		s.handleClearField(ctx, cq, action.Field)
	case cbAddRule:
		s.handleEditPrompt(ctx, cq, action.Field)
	case cbDeleteRule:
		s.handleDeleteRule(ctx, cq, action.RuleKey, action.RuleRef)
	case cbCancel:
		s.handleCancel(ctx, cq)
	default:
		s.answerCallback(ctx, cq.ID, "Unknown action.", false)
	}
}
