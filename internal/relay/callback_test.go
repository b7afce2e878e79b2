package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"topicbridge/internal/settings"
)

func TestParseCallback(t *testing.T) {
	cases := []struct {
		name string
		data string
		want callbackAction
	}{
		{"verify", "action:verify_user", callbackAction{Kind: cbVerify}},
		{"cancel", "cancel", callbackAction{Kind: cbCancel}},
		{"menu", "menu:filters", callbackAction{Kind: cbMenu, Section: "filters"}},
		{"block", "block:42", callbackAction{Kind: cbModeration, ModKind: actionBlock, UserID: 42}},
		{"unmute", "unmute:42", callbackAction{Kind: cbModeration, ModKind: actionUnmute, UserID: 42}},
		{"pin", "pin_card:42", callbackAction{Kind: cbPinCard, UserID: 42}},
		{"toggle mode", "cfg:mode", callbackAction{Kind: cbToggleMode}},
		{"flag off", "cfg:flag:enable_text_forwarding:off", callbackAction{Kind: cbSetFlag, Flag: settings.ToggleText, Enable: false}},
		{"flag on", "cfg:flag:enable_link_forwarding:on", callbackAction{Kind: cbSetFlag, Flag: settings.ToggleLink, Enable: true}},
		{"edit", "cfg:edit:welcome_msg", callbackAction{Kind: cbEditField, Field: settings.FieldWelcomeMessage}},
		{"clear", "cfg:clear:backup_group_id", callbackAction{Kind: cbClearField, Field: settings.FieldBackupGroupID}},
		{"add keyword", "rule:add:block_keyword_add", callbackAction{Kind: cbAddRule, Field: settings.FieldBlockKeywordAdd}},
		{"add auto reply", "rule:add:auto_reply_add", callbackAction{Kind: cbAddRule, Field: settings.FieldAutoReplyAdd}},
		{"delete keyword", "rule:del:block_keywords:spam", callbackAction{Kind: cbDeleteRule, RuleKey: settings.KeyBlockKeywords, RuleRef: "spam"}},
		{"delete auto reply", "rule:del:keyword_responses:1712345", callbackAction{Kind: cbDeleteRule, RuleKey: settings.KeyAutoReplyRules, RuleRef: "1712345"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseCallback(tc.data))
		})
	}
}

func TestParseCallback_KeywordWithColonsSurvives(t *testing.T) {
	got := parseCallback("rule:del:block_keywords:https://spam.example")
	assert.Equal(t, cbDeleteRule, got.Kind)
	assert.Equal(t, "https://spam.example", got.RuleRef)
}

func TestParseCallback_RejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"block",
		"block:notanumber",
		"pin_card:",
		"cfg:flag:unknown_key:on",
		"cfg:edit:no_such_field",
		"rule:add:welcome_msg", // not a rule field
		"rule:del:no_such_key:x",
		"delete_everything",
	} {
		assert.Equal(t, cbUnknown, parseCallback(data).Kind, data)
	}
}
