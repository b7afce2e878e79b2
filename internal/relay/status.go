package relay

import (
	"context"
	"html"
	"strconv"

	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

// moderationKind is one of the four status-toggling actions.
type moderationKind string

const (
	actionBlock   moderationKind = "block"
	actionUnblock moderationKind = "unblock"
	actionMute    moderationKind = "mute"
	actionUnmute  moderationKind = "unmute"
)

// handleModerationAction applies a block/mute toggle from any surface the
// moderation keyboard lives on (conversation topic, profile log, block log)
// and then converges every surface to the new state. State is persisted
// first; surface updates are best effort.
func (s *Service) handleModerationAction(ctx context.Context, cq *telegram.CallbackQuery, kind moderationKind, userID int64) {
	user, err := s.users.Get(ctx, userID)
	if err != nil || user == nil {
		s.answerCallback(ctx, cq.ID, "❌ Unknown user.", true)
		return
	}

	switch kind {
	case actionBlock:
		user.Blocked = true
	case actionUnblock:
		user.Blocked = false
	case actionMute:
		user.Muted = true
	case actionUnmute:
		user.Muted = false
	}
	if err := s.users.Put(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("user", userID).Msg("persisting moderation state failed")
		s.answerCallback(ctx, cq.ID, "❌ Saving the change failed, try again.", true)
		return
	}

	// The card the admin tapped may be a surface whose ref we lost (a
	// recreated log card, for instance). Fill the missing ref before
	// converging, so future edits reach it.
	invoking := cq.Message
	if invoking != nil {
		s.backfillCardRef(ctx, user, invoking, false)
	}

	// Re-read: backfill may have persisted new refs.
	user, err = s.users.Get(ctx, userID)
	if err != nil || user == nil {
		return
	}

	toasts := map[moderationKind]string{
		actionBlock:   "🚫 User blocked",
		actionUnblock: "✅ User unblocked",
		actionMute:    "🔕 Notifications muted",
		actionUnmute:  "🔔 Notifications unmuted",
	}
	s.answerCallback(ctx, cq.ID, toasts[kind], false)

	s.refreshModerationSurfaces(ctx, user, invoking)
	s.syncBlockLog(ctx, user)

	// Tapping block/unblock inside the conversation topic also posts a
	// confirmation there so the thread shows when status changed.
	if invoking != nil && invoking.MessageThreadID == user.TopicID && user.TopicID != 0 {
		switch kind {
		case actionBlock:
			s.topicNotice(ctx, user.TopicID, "🚫 This user is now blocked. Their messages are dropped silently.")
		case actionUnblock:
			s.topicNotice(ctx, user.TopicID, "✅ This user is unblocked and can message again.")
		}
	}
}

// backfillCardRef associates a tapped card with the user record when the
// stored ref for that surface is missing. An existing ref stays put, even
// when it points elsewhere: stale duplicate cards must not hijack future
// edits. Pinning passes adopt to take over the tapped card regardless.
func (s *Service) backfillCardRef(ctx context.Context, user *User, invoking *telegram.Message, adopt bool) {
	changed := false
	set := func(ref *int64) {
		if *ref == invoking.MessageID || (*ref != 0 && !adopt) {
			return
		}
		*ref = invoking.MessageID
		changed = true
	}
	switch invoking.MessageThreadID {
	case user.TopicID:
		if user.TopicID != 0 {
			set(&user.InfoCardMsgID)
		}
	case s.settings.LogTopicID(ctx, settings.KeyProfileLogTopicID):
		set(&user.ProfileLogMsgID)
	case s.settings.LogTopicID(ctx, settings.KeyBlockLogTopicID):
		set(&user.BlockLogMsgID)
	}
	if changed {
		if err := s.users.Put(ctx, user); err != nil {
			s.logger.Warn().Err(err).Int64("user", user.ID).Msg("backfilling card ref failed")
		}
	}
}

// refreshModerationSurfaces rewrites the moderation keyboards that show the
// user's status: the card the admin tapped first, then the info card and
// the profile log card when they are distinct messages. Each edit is
// independent; a failed one is logged and skipped.
func (s *Service) refreshModerationSurfaces(ctx context.Context, user *User, invoking *telegram.Message) {
	keyboard := moderationKeyboard(user.ID, user.Blocked, user.Muted)

	editKeyboard := func(messageID int64, jump bool) {
		markup := keyboard
		if jump && user.TopicID != 0 {
			markup = withJumpLink(keyboard, s.cfg.AdminGroupID, user.TopicID)
		}
		err := s.gw.EditMessageReplyMarkup(ctx, telegram.EditMessageReplyMarkupParams{
			ChatID:      s.cfg.AdminGroupID,
			MessageID:   messageID,
			ReplyMarkup: markup,
		})
		if err != nil && !telegram.IsNotModified(err) {
			s.logger.Warn().Err(err).Int64("user", user.ID).Int64("message", messageID).Msg("refreshing moderation keyboard failed")
		}
	}

	seen := map[int64]bool{}
	if invoking != nil && invoking.MessageID != 0 {
		editKeyboard(invoking.MessageID, hasJumpLink(invoking.ReplyMarkup))
		seen[invoking.MessageID] = true
	}
	if user.InfoCardMsgID != 0 && !seen[user.InfoCardMsgID] {
		editKeyboard(user.InfoCardMsgID, false)
		seen[user.InfoCardMsgID] = true
	}
	if user.ProfileLogMsgID != 0 && !seen[user.ProfileLogMsgID] {
		editKeyboard(user.ProfileLogMsgID, true)
	}
}

// blockStatusText renders the block-log card body for the current state.
func blockStatusText(user *User) string {
	status := "✅ Active"
	switch {
	case user.Blocked:
		status = "🚫 Blocked"
	case user.Muted:
		status = "🔕 Muted"
	}
	name := "user"
	handle := "none"
	if user.Profile != nil {
		name = user.Profile.DisplayName
		if user.Profile.Handle != "" {
			handle = user.Profile.Handle
		}
	}
	return "<b>🛡 Moderation status</b>\n" +
		"• User: " + html.EscapeString(name) + "\n" +
		"• Handle: <code>" + html.EscapeString(handle) + "</code>\n" +
		"• ID: <code>" + strconv.FormatInt(user.ID, 10) + "</code>\n" +
		"• Status: " + status
}

// syncBlockLog converges the user's block-log card with the persisted
// state. An existing card is edited in place; if the edit fails for any
// reason other than "not modified" the stale ref is dropped and a fresh
// card is posted.
func (s *Service) syncBlockLog(ctx context.Context, user *User) {
	text := blockStatusText(user)
	keyboard := moderationKeyboard(user.ID, user.Blocked, user.Muted)
	if user.TopicID != 0 {
		keyboard = withJumpLink(keyboard, s.cfg.AdminGroupID, user.TopicID)
	}

	if user.BlockLogMsgID != 0 {
		err := s.gw.EditMessageText(ctx, telegram.EditMessageTextParams{
			ChatID:      s.cfg.AdminGroupID,
			MessageID:   user.BlockLogMsgID,
			Text:        text,
			ParseMode:   "HTML",
			ReplyMarkup: keyboard,
		})
		if err == nil || telegram.IsNotModified(err) {
			return
		}
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("editing block log card failed, reposting")
		user.BlockLogMsgID = 0
	}

	sent, err := s.postToLogTopic(ctx, settings.KeyBlockLogTopicID, "🛡 Moderation log", telegram.SendMessageParams{
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("posting block log card failed")
		return
	}
	user.BlockLogMsgID = sent.MessageID
	if err := s.users.Put(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("user", user.ID).Msg("persisting block log ref failed")
	}
}

// handlePin pins the tapped card in the admin group and re-adopts the card
// ref for whichever surface it lives on.
func (s *Service) handlePin(ctx context.Context, cq *telegram.CallbackQuery, userID int64) {
	if cq.Message == nil {
		s.answerCallback(ctx, cq.ID, "❌ Nothing to pin.", true)
		return
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil || user == nil {
		s.answerCallback(ctx, cq.ID, "❌ Unknown user.", true)
		return
	}

	err = s.gw.PinChatMessage(ctx, telegram.PinChatMessageParams{
		ChatID:              s.cfg.AdminGroupID,
		MessageID:           cq.Message.MessageID,
		DisableNotification: true,
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("user", userID).Msg("pinning card failed")
		s.answerCallback(ctx, cq.ID, "❌ Pinning failed. Does the bot have pin rights?", true)
		return
	}

	s.backfillCardRef(ctx, user, cq.Message, true)
	s.answerCallback(ctx, cq.ID, "📌 Card pinned", false)
}

// topicNotice posts a plain notice into a topic of the admin group.
func (s *Service) topicNotice(ctx context.Context, topicID int64, text string) {
	_, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:          s.cfg.AdminGroupID,
		MessageThreadID: topicID,
		Text:            text,
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("topic", topicID).Msg("topic notice failed")
	}
}
