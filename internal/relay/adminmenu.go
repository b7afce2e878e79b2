package relay

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

// toggleLabels maps forwarding toggle keys to menu labels.
var toggleLabels = map[string]string{
	settings.ToggleUserForward:    "Forwarded from users",
	settings.ToggleGroupForward:   "Forwarded from groups",
	settings.ToggleChannelForward: "Forwarded from channels",
	settings.ToggleAudioVoice:     "Audio & voice",
	settings.ToggleStickerGif:     "Stickers & GIFs",
	settings.ToggleMedia:          "Photos, videos & files",
	settings.ToggleLink:           "Links",
	settings.ToggleText:           "Plain text",
}

func backRow(section string) []telegram.InlineKeyboardButton {
	return []telegram.InlineKeyboardButton{{Text: "⬅️ Back", CallbackData: "menu:" + section}}
}

// renderMenu builds the text and keyboard for one menu section.
func (s *Service) renderMenu(ctx context.Context, section string) (string, *telegram.InlineKeyboardMarkup) {
	switch section {
	case "filters":
		return s.renderFiltersMenu(ctx)
	case "keywords":
		return s.renderKeywordsMenu(ctx)
	case "autoreply":
		return s.renderAutoReplyMenu(ctx)
	case "admins":
		return s.renderAdminsMenu(ctx)
	case "backup":
		return s.renderBackupMenu(ctx)
	default:
		return s.renderMainMenu(ctx)
	}
}

func (s *Service) renderMainMenu(ctx context.Context) (string, *telegram.InlineKeyboardMarkup) {
	mode := "one-click button"
	if s.settings.VerificationMode(ctx) == settings.ModeCode {
		mode = "code challenge"
	}
	text := "<b>⚙️ Bot settings</b>\n\n" +
		"Verification mode: <b>" + mode + "</b>"
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "🔐 Switch verification mode", CallbackData: "cfg:mode"}},
		{{Text: "🧹 Content filters", CallbackData: "menu:filters"}},
		{{Text: "🚫 Block keywords", CallbackData: "menu:keywords"}},
		{{Text: "🤖 Auto replies", CallbackData: "menu:autoreply"}},
		{{Text: "👥 Authorized admins", CallbackData: "menu:admins"}},
		{{Text: "💾 Backup group", CallbackData: "menu:backup"}},
		{
			{Text: "✏️ Welcome message", CallbackData: "cfg:edit:" + string(settings.FieldWelcomeMessage)},
			{Text: "↩️ Reset welcome", CallbackData: "cfg:clear:" + string(settings.FieldWelcomeMessage)},
		},
	}}
	return text, kb
}

func (s *Service) renderFiltersMenu(ctx context.Context) (string, *telegram.InlineKeyboardMarkup) {
	text := "<b>🧹 Content filters</b>\n\n" +
		"Tap a category to allow or deny forwarding it."
	var rows [][]telegram.InlineKeyboardButton
	for _, key := range settings.ForwardToggles {
		allowed := s.settings.ForwardAllowed(ctx, key)
		state, next := "✅", "off"
		if !allowed {
			state, next = "🚫", "on"
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         state + " " + toggleLabels[key],
			CallbackData: "cfg:flag:" + key + ":" + next,
		}})
	}
	rows = append(rows, backRow("main"))
	return text, &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (s *Service) renderKeywordsMenu(ctx context.Context) (string, *telegram.InlineKeyboardMarkup) {
	keywords := s.settings.BlockKeywords(ctx)
	threshold := s.settings.BlockThreshold(ctx)

	var b strings.Builder
	b.WriteString("<b>🚫 Block keywords</b>\n\n")
	fmt.Fprintf(&b, "Users are blocked automatically after <b>%d</b> strikes.\n\n", threshold)
	if len(keywords) == 0 {
		b.WriteString("No keywords configured.")
	} else {
		for _, kw := range keywords {
			b.WriteString("• <code>" + html.EscapeString(kw) + "</code>\n")
		}
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, kw := range keywords {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         "🗑 " + kw,
			CallbackData: "rule:del:" + settings.KeyBlockKeywords + ":" + kw,
		}})
	}
	rows = append(rows,
		[]telegram.InlineKeyboardButton{{Text: "➕ Add keyword", CallbackData: "rule:add:" + string(settings.FieldBlockKeywordAdd)}},
		[]telegram.InlineKeyboardButton{{Text: "🎯 Set strike threshold", CallbackData: "cfg:edit:" + string(settings.FieldBlockThreshold)}},
		backRow("main"),
	)
	return b.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (s *Service) renderAutoReplyMenu(ctx context.Context) (string, *telegram.InlineKeyboardMarkup) {
	rules := s.settings.AutoReplyRules(ctx)

	var b strings.Builder
	b.WriteString("<b>🤖 Auto replies</b>\n\n")
	if len(rules) == 0 {
		b.WriteString("No rules configured.")
	} else {
		for i, rule := range rules {
			fmt.Fprintf(&b, "%d. <code>%s</code> → %s\n",
				i+1, html.EscapeString(rule.Keywords), html.EscapeString(rule.Response))
		}
	}

	var rows [][]telegram.InlineKeyboardButton
	for i, rule := range rules {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         fmt.Sprintf("🗑 Rule %d (%s)", i+1, rule.Keywords),
			CallbackData: "rule:del:" + settings.KeyAutoReplyRules + ":" + strconv.FormatInt(rule.ID, 10),
		}})
	}
	rows = append(rows,
		[]telegram.InlineKeyboardButton{{Text: "➕ Add rule", CallbackData: "rule:add:" + string(settings.FieldAutoReplyAdd)}},
		backRow("main"),
	)
	return b.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (s *Service) renderAdminsMenu(ctx context.Context) (string, *telegram.InlineKeyboardMarkup) {
	admins := s.settings.AuthorizedAdmins(ctx)

	var b strings.Builder
	b.WriteString("<b>👥 Authorized admins</b>\n\n")
	b.WriteString("These accounts may moderate users and change settings, in addition to the primary admins.\n\n")
	if len(admins) == 0 {
		b.WriteString("None configured.")
	} else {
		for _, id := range admins {
			b.WriteString("• <code>" + strconv.FormatInt(id, 10) + "</code>\n")
		}
	}

	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "✏️ Replace list", CallbackData: "cfg:edit:" + string(settings.FieldAuthorizedAdmins)}},
		backRow("main"),
	}}
	return b.String(), kb
}

func (s *Service) renderBackupMenu(ctx context.Context) (string, *telegram.InlineKeyboardMarkup) {
	groupID := s.settings.BackupGroupID(ctx)

	text := "<b>💾 Backup group</b>\n\n"
	if groupID == 0 {
		text += "No backup group configured. Relayed user messages are not mirrored anywhere."
	} else {
		text += "Relayed user messages are mirrored to group <code>" + strconv.FormatInt(groupID, 10) + "</code>."
	}

	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "✏️ Set group ID", CallbackData: "cfg:edit:" + string(settings.FieldBackupGroupID)}},
		{{Text: "🗑 Disable backup", CallbackData: "cfg:clear:" + string(settings.FieldBackupGroupID)}},
		backRow("main"),
	}}
	return text, kb
}

// sendMainMenu shows the settings menu, editing messageID in place when it
// is nonzero.
func (s *Service) sendMainMenu(ctx context.Context, chatID, messageID int64) {
	text, kb := s.renderMainMenu(ctx)
	s.sendOrEdit(ctx, chatID, messageID, text, kb)
}

// sendOrEdit edits an existing menu message or sends a fresh one. An edit
// failure (the message may be too old) falls back to sending.
func (s *Service) sendOrEdit(ctx context.Context, chatID, messageID int64, text string, kb *telegram.InlineKeyboardMarkup) {
	if messageID != 0 {
		err := s.gw.EditMessageText(ctx, telegram.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ParseMode:   "HTML",
			ReplyMarkup: kb,
		})
		if err == nil || telegram.IsNotModified(err) {
			return
		}
		s.logger.Debug().Err(err).Int64("chat", chatID).Msg("menu edit failed, sending fresh")
	}
	_, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: kb,
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat", chatID).Msg("sending menu failed")
	}
}

// refreshMenu re-renders a section into the message the tap came from.
func (s *Service) refreshMenu(ctx context.Context, cq *telegram.CallbackQuery, section string) {
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	text, kb := s.renderMenu(ctx, section)
	s.sendOrEdit(ctx, cq.Message.Chat.ID, cq.Message.MessageID, text, kb)
}

func (s *Service) handleMenuCallback(ctx context.Context, cq *telegram.CallbackQuery, section string) {
	s.answerCallback(ctx, cq.ID, "", false)
	s.refreshMenu(ctx, cq, section)
}

func (s *Service) handleToggleMode(ctx context.Context, cq *telegram.CallbackQuery) {
	next := settings.ModeCode
	if s.settings.VerificationMode(ctx) == settings.ModeCode {
		next = settings.ModeButton
	}
	if err := s.settings.Set(ctx, settings.KeyVerificationMode, next); err != nil {
		s.answerCallback(ctx, cq.ID, "❌ Saving failed.", true)
		return
	}
	s.answerCallback(ctx, cq.ID, "Verification mode updated", false)
	s.refreshMenu(ctx, cq, "main")
}

func (s *Service) handleSetFlag(ctx context.Context, cq *telegram.CallbackQuery, key string, enable bool) {
	if err := s.settings.SetForwardAllowed(ctx, key, enable); err != nil {
		s.answerCallback(ctx, cq.ID, "❌ Saving failed.", true)
		return
	}
	s.answerCallback(ctx, cq.ID, "Filter updated", false)
	s.refreshMenu(ctx, cq, "filters")
}

// editPrompts is the instruction text shown when an admin is asked to type
// a value.
var editPrompts = map[settings.FieldKey]string{
	settings.FieldWelcomeMessage:   "✏️ Send the new welcome message.",
	settings.FieldBlockThreshold:   "🎯 Send the new strike threshold (a positive number).",
	settings.FieldBackupGroupID:    "💾 Send the backup group chat ID (a negative number for supergroups).",
	settings.FieldAuthorizedAdmins: "👥 Send the full list of authorized admin IDs, separated by spaces or commas. This replaces the current list.",
	settings.FieldBlockKeywordAdd:  "🚫 Send the keyword or pattern to block.",
	settings.FieldAutoReplyAdd:     "🤖 Send the new rule as:\n\npattern | reply text",
}

func (s *Service) handleEditPrompt(ctx context.Context, cq *telegram.CallbackQuery, field settings.FieldKey) {
	if err := s.settings.SetAdminState(ctx, cq.From.ID, field); err != nil {
		s.answerCallback(ctx, cq.ID, "❌ Could not start the prompt, try again.", true)
		return
	}
	s.answerCallback(ctx, cq.ID, "", false)
	_, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: cq.From.ID,
		Text:   editPrompts[field],
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: "✖️ Cancel", CallbackData: "cancel"}},
		}},
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("admin", cq.From.ID).Msg("sending edit prompt failed")
	}
}

func (s *Service) handleClearField(ctx context.Context, cq *telegram.CallbackQuery, field settings.FieldKey) {
	var err error
	section := "main"
	switch field {
	case settings.FieldWelcomeMessage:
		err = s.settings.Delete(ctx, settings.KeyWelcomeMessage)
	case settings.FieldBackupGroupID:
		err = s.settings.Delete(ctx, settings.KeyBackupGroupID)
		section = "backup"
	default:
		s.answerCallback(ctx, cq.ID, "Nothing to reset here.", false)
		return
	}
	if err != nil {
		s.answerCallback(ctx, cq.ID, "❌ Saving failed.", true)
		return
	}
	s.answerCallback(ctx, cq.ID, "Reset to default", false)
	s.refreshMenu(ctx, cq, section)
}

func (s *Service) handleDeleteRule(ctx context.Context, cq *telegram.CallbackQuery, ruleKey, ref string) {
	var err error
	section := "keywords"
	if ruleKey == settings.KeyBlockKeywords {
		err = s.settings.DeleteBlockKeyword(ctx, ref)
	} else {
		section = "autoreply"
		id, parseErr := strconv.ParseInt(ref, 10, 64)
		if parseErr != nil {
			s.answerCallback(ctx, cq.ID, "❌ Malformed rule reference.", true)
			return
		}
		err = s.settings.DeleteAutoReplyRule(ctx, id)
	}
	if err != nil {
		s.answerCallback(ctx, cq.ID, "❌ Deleting failed.", true)
		return
	}
	s.answerCallback(ctx, cq.ID, "Deleted", false)
	s.refreshMenu(ctx, cq, section)
}

func (s *Service) handleCancel(ctx context.Context, cq *telegram.CallbackQuery) {
	if err := s.settings.ClearAdminState(ctx, cq.From.ID); err != nil {
		s.logger.Warn().Err(err).Int64("admin", cq.From.ID).Msg("clearing admin state failed")
	}
	s.answerCallback(ctx, cq.ID, "Cancelled", false)
	if cq.Message != nil && cq.Message.Chat != nil {
		s.sendOrEdit(ctx, cq.Message.Chat.ID, cq.Message.MessageID, "✖️ Cancelled.", nil)
	}
}

// handleAdminInput consumes the typed value an admin was prompted for. The
// pending state is cleared on success; a rejected value keeps the prompt
// active so the admin can just try again.
func (s *Service) handleAdminInput(ctx context.Context, adminID int64, text string, field settings.FieldKey) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.notify(ctx, adminID, "Please send a text value, or tap Cancel.")
		return
	}

	done := func(confirmation string) {
		if err := s.settings.ClearAdminState(ctx, adminID); err != nil {
			s.logger.Warn().Err(err).Int64("admin", adminID).Msg("clearing admin state failed")
		}
		s.notify(ctx, adminID, confirmation)
	}

	// Typed /cancel aborts the edit the same way the inline button does.
	if text == "/cancel" {
		done("✖️ Cancelled.")
		return
	}

	switch field {
	case settings.FieldWelcomeMessage:
		if err := s.settings.Set(ctx, settings.KeyWelcomeMessage, text); err != nil {
			s.notify(ctx, adminID, "❌ Saving failed, try again.")
			return
		}
		done("✅ Welcome message updated.")

	case settings.FieldBlockThreshold:
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 {
			s.notify(ctx, adminID, "❌ Please send a positive whole number.")
			return
		}
		if err := s.settings.Set(ctx, settings.KeyBlockThreshold, strconv.Itoa(n)); err != nil {
			s.notify(ctx, adminID, "❌ Saving failed, try again.")
			return
		}
		done(fmt.Sprintf("✅ Strike threshold set to %d.", n))

	case settings.FieldBackupGroupID:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id == 0 {
			s.notify(ctx, adminID, "❌ Please send a numeric chat ID.")
			return
		}
		if err := s.settings.Set(ctx, settings.KeyBackupGroupID, strconv.FormatInt(id, 10)); err != nil {
			s.notify(ctx, adminID, "❌ Saving failed, try again.")
			return
		}
		done("✅ Backup group configured.")

	case settings.FieldAuthorizedAdmins:
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t'
		})
		for _, f := range fields {
			if _, err := strconv.ParseInt(f, 10, 64); err != nil {
				s.notify(ctx, adminID, "❌ \""+f+"\" is not a numeric user ID. Send the list again.")
				return
			}
		}
		if err := s.settings.SetAuthorizedAdmins(ctx, fields); err != nil {
			s.notify(ctx, adminID, "❌ Saving failed, try again.")
			return
		}
		done(fmt.Sprintf("✅ Authorized admin list replaced (%d entries).", len(fields)))

	case settings.FieldBlockKeywordAdd:
		changed, err := s.settings.AddBlockKeyword(ctx, text)
		if err != nil {
			s.notify(ctx, adminID, "❌ Saving failed, try again.")
			return
		}
		if !changed {
			done("That keyword is already on the list.")
			return
		}
		done("✅ Keyword added.")

	case settings.FieldAutoReplyAdd:
		pattern, response, ok := strings.Cut(text, "|")
		pattern = strings.TrimSpace(pattern)
		response = strings.TrimSpace(response)
		if !ok || pattern == "" || response == "" {
			s.notify(ctx, adminID, "❌ Use the form: pattern | reply text")
			return
		}
		if _, err := s.settings.AddAutoReplyRule(ctx, pattern, response); err != nil {
			s.notify(ctx, adminID, "❌ Saving failed, try again.")
			return
		}
		done("✅ Auto-reply rule added.")

	default:
		// Unreachable for valid stored states.
		done("Your pending input state was reset. Send /start to open the menu.")
	}
}
