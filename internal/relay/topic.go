package relay

import (
	"context"
	"fmt"
	"html"

	"topicbridge/internal/metrics"
	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

// relayToTopic copies a verified user's message into their forum topic,
// creating the topic on first contact and recreating it once if the copy
// fails. At most one retry; if that also fails the user gets a
// delivery-failure notice.
func (s *Service) relayToTopic(ctx context.Context, msg *telegram.Message, user *User) {
	if user.TopicID == 0 {
		if err := s.createUserTopic(ctx, msg, user); err != nil {
			s.logger.Error().Err(err).Int64("user", user.ID).Msg("creating user topic failed")
			metrics.RelayFailuresTotal.Inc()
			s.notify(ctx, user.ID, "⚠️ Your message could not be delivered. Please try again later.")
			return
		}
	}

	quiet := user.Blocked || user.Muted
	_, err := s.gw.CopyMessage(ctx, telegram.CopyMessageParams{
		ChatID:              s.cfg.AdminGroupID,
		MessageThreadID:     user.TopicID,
		FromChatID:          user.ID,
		MessageID:           msg.MessageID,
		DisableNotification: quiet,
	})
	if err != nil {
		// The topic may have silently vanished, and the API does not always
		// say so. Whatever the error, recreate the topic once and retry the
		// copy; a second failure is terminal for this message.
		user.TopicID = 0
		user.InfoCardMsgID = 0
		if err = s.createUserTopic(ctx, msg, user); err == nil {
			_, err = s.gw.CopyMessage(ctx, telegram.CopyMessageParams{
				ChatID:              s.cfg.AdminGroupID,
				MessageThreadID:     user.TopicID,
				FromChatID:          user.ID,
				MessageID:           msg.MessageID,
				DisableNotification: quiet,
			})
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("user", user.ID).Msg("relaying message failed")
		metrics.RelayFailuresTotal.Inc()
		s.notify(ctx, user.ID, "⚠️ Your message could not be delivered. Please try again later.")
		return
	}

	s.recordMessage(ctx, user.ID, msg)
	s.backupFanOut(ctx, msg, user)
}

// createUserTopic creates the per-user forum topic, posts the pinned-style
// info card with moderation controls, and persists the refs. A fresh topic
// always resets the strike counter.
func (s *Service) createUserTopic(ctx context.Context, msg *telegram.Message, user *User) error {
	from := msg.From
	if from == nil {
		from = &telegram.User{ID: user.ID}
	}
	facts := factsFor(from)

	topic, err := s.gw.CreateForumTopic(ctx, s.cfg.AdminGroupID, facts.topicName)
	if err != nil {
		return fmt.Errorf("create forum topic: %w", err)
	}

	user.TopicID = topic.MessageThreadID
	user.StrikeCount = 0
	if user.Profile == nil {
		user.Profile = &Profile{
			DisplayName:  facts.name,
			Handle:       facts.handle,
			FirstContact: msg.Date,
		}
	}

	card, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:          s.cfg.AdminGroupID,
		MessageThreadID: user.TopicID,
		Text:            facts.infoCard,
		ParseMode:       "HTML",
		ReplyMarkup:     moderationKeyboard(user.ID, user.Blocked, user.Muted),
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("posting info card failed")
	} else {
		user.InfoCardMsgID = card.MessageID
	}

	if err := s.users.Put(ctx, user); err != nil {
		return fmt.Errorf("persist topic refs: %w", err)
	}

	// Mirror the card into the profile log topic. Best effort: the
	// conversation topic works without it.
	logMsg, err := s.postToLogTopic(ctx, settings.KeyProfileLogTopicID, "👤 User profiles", telegram.SendMessageParams{
		Text:        facts.infoCard,
		ParseMode:   "HTML",
		ReplyMarkup: withJumpLink(moderationKeyboard(user.ID, user.Blocked, user.Muted), s.cfg.AdminGroupID, user.TopicID),
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("posting profile log card failed")
	} else {
		user.ProfileLogMsgID = logMsg.MessageID
		if err := s.users.Put(ctx, user); err != nil {
			s.logger.Error().Err(err).Int64("user", user.ID).Msg("persisting profile log ref failed")
		}
	}
	return nil
}

// postToLogTopic sends a message into the named log topic of the admin
// group, creating the topic on first use and recreating it exactly once if
// the stored topic id turns out to be stale.
func (s *Service) postToLogTopic(ctx context.Context, key, name string, p telegram.SendMessageParams) (*telegram.Message, error) {
	topicID, err := s.ensureLogTopic(ctx, key, name, false)
	if err != nil {
		return nil, err
	}

	p.ChatID = s.cfg.AdminGroupID
	p.MessageThreadID = topicID
	sent, err := s.gw.SendMessage(ctx, p)
	if err != nil && telegram.IsTopicGone(err) {
		topicID, err = s.ensureLogTopic(ctx, key, name, true)
		if err != nil {
			return nil, err
		}
		p.MessageThreadID = topicID
		sent, err = s.gw.SendMessage(ctx, p)
	}
	return sent, err
}

// ensureLogTopic returns the topic id stored under key, creating a new
// forum topic (and storing its id) when none exists or recreate is set.
func (s *Service) ensureLogTopic(ctx context.Context, key, name string, recreate bool) (int64, error) {
	if !recreate {
		if id := s.settings.LogTopicID(ctx, key); id != 0 {
			return id, nil
		}
	}
	topic, err := s.gw.CreateForumTopic(ctx, s.cfg.AdminGroupID, name)
	if err != nil {
		return 0, fmt.Errorf("create log topic %q: %w", name, err)
	}
	if err := s.settings.SetLogTopicID(ctx, key, topic.MessageThreadID); err != nil {
		return 0, fmt.Errorf("store log topic id: %w", err)
	}
	return topic.MessageThreadID, nil
}

// recordMessage remembers textual content for later edit reconciliation.
// Media-only messages are not recorded; their edits carry no text to diff.
func (s *Service) recordMessage(ctx context.Context, userID int64, msg *telegram.Message) {
	text := msg.TextOrCaption()
	if text == "" {
		return
	}
	rec := MessageRecord{Text: text, SentAt: msg.Date}
	if err := s.messages.Put(ctx, userID, msg.MessageID, rec); err != nil {
		s.logger.Warn().Err(err).Int64("user", userID).Msg("recording message failed")
	}
}

// backupFanOut mirrors a relayed user message into the configured backup
// group. Failures are logged and swallowed; backup never affects the
// primary relay path.
func (s *Service) backupFanOut(ctx context.Context, msg *telegram.Message, user *User) {
	groupID := s.settings.BackupGroupID(ctx)
	if groupID == 0 {
		return
	}

	name := "user"
	if user.Profile != nil {
		name = user.Profile.DisplayName
	}
	header := fmt.Sprintf("📨 <b>%s</b> (<code>%d</code>) · %s",
		html.EscapeString(name), user.ID, formatTimestamp(msg.Date))

	if text := msg.TextOrCaption(); text != "" && !msg.HasMedia() {
		_, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:    groupID,
			Text:      header + "\n\n" + html.EscapeString(text),
			ParseMode: "HTML",
		})
		if err != nil {
			s.logger.Warn().Err(err).Int64("user", user.ID).Msg("backup send failed")
		}
		return
	}

	if _, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:    groupID,
		Text:      header,
		ParseMode: "HTML",
	}); err != nil {
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("backup header failed")
		return
	}
	if _, err := s.gw.CopyMessage(ctx, telegram.CopyMessageParams{
		ChatID:     groupID,
		FromChatID: user.ID,
		MessageID:  msg.MessageID,
	}); err != nil {
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("backup copy failed")
	}
}

// handleUserEdit reports a user-side edit into the admin topic as a
// before/after notice. The copied message in the topic is immutable, so the
// notice is the reconciliation mechanism.
func (s *Service) handleUserEdit(ctx context.Context, msg *telegram.Message) {
	userID := msg.Chat.ID
	user, err := s.users.Get(ctx, userID)
	if err != nil || user == nil || user.Blocked || user.TopicID == 0 {
		return
	}

	newText := msg.TextOrCaption()
	if newText == "" {
		return
	}

	oldText := "(original content unknown)"
	rec, err := s.messages.Get(ctx, userID, msg.MessageID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user", userID).Msg("loading message record failed")
	}
	if rec != nil {
		oldText = rec.Text
	}

	notice := "✏️ <b>User edited a message</b> (" + formatTimestamp(msg.EditDate) + ")\n" +
		"Before: " + html.EscapeString(oldText) + "\n" +
		"After: " + html.EscapeString(newText)
	if _, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:          s.cfg.AdminGroupID,
		MessageThreadID: user.TopicID,
		Text:            notice,
		ParseMode:       "HTML",
	}); err != nil {
		s.logger.Warn().Err(err).Int64("user", userID).Msg("edit notice failed")
		return
	}

	// Only replace records we have: an edit to an unrecorded message must
	// not fabricate one.
	if rec != nil {
		if err := s.messages.Put(ctx, userID, msg.MessageID, MessageRecord{Text: newText, SentAt: msg.EditDate}); err != nil {
			s.logger.Warn().Err(err).Int64("user", userID).Msg("updating message record failed")
		}
	}
}

// handleAdminEdit mirrors an admin-side edit of a relayed reply to the
// user. Without a stored record we cannot tell which user-side message the
// original reply became, so unrecorded edits are dropped.
func (s *Service) handleAdminEdit(ctx context.Context, msg *telegram.Message) {
	if !msg.IsTopicMessage || msg.MessageThreadID == 0 {
		return
	}
	if msg.From == nil || msg.From.IsBot || !s.isAdmin(ctx, msg.From.ID) {
		return
	}
	user, err := s.users.FindByTopic(ctx, msg.MessageThreadID)
	if err != nil || user == nil || user.Blocked {
		return
	}

	newText := msg.TextOrCaption()
	if newText == "" {
		return
	}

	rec, err := s.messages.Get(ctx, user.ID, msg.MessageID)
	if err != nil || rec == nil {
		return
	}

	notice := "✏️ The support team updated an earlier reply (" + formatTimestamp(msg.EditDate) + ")\n" +
		"Before: " + html.EscapeString(rec.Text) + "\n" +
		"After: " + html.EscapeString(newText)
	if _, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:    user.ID,
		Text:      notice,
		ParseMode: "HTML",
	}); err != nil {
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("admin edit notice failed")
		return
	}

	if err := s.messages.Put(ctx, user.ID, msg.MessageID, MessageRecord{Text: newText, SentAt: msg.EditDate}); err != nil {
		s.logger.Warn().Err(err).Int64("user", user.ID).Msg("updating message record failed")
	}
}

// mediaOf extracts the single re-sendable attachment of a message.
func mediaOf(msg *telegram.Message) (telegram.MediaKind, string, bool) {
	switch {
	case len(msg.Photo) > 0:
		// Telegram lists sizes smallest first; the last is the original.
		return telegram.MediaPhoto, msg.Photo[len(msg.Photo)-1].FileID, true
	case msg.Video != nil:
		return telegram.MediaVideo, msg.Video.FileID, true
	case msg.Audio != nil:
		return telegram.MediaAudio, msg.Audio.FileID, true
	case msg.Voice != nil:
		return telegram.MediaVoice, msg.Voice.FileID, true
	case msg.Sticker != nil:
		return telegram.MediaSticker, msg.Sticker.FileID, true
	case msg.Animation != nil:
		return telegram.MediaAnimation, msg.Animation.FileID, true
	case msg.VideoNote != nil:
		return telegram.MediaVideoNote, msg.VideoNote.FileID, true
	case msg.Document != nil:
		return telegram.MediaDocument, msg.Document.FileID, true
	}
	return "", "", false
}

// handleAdminGroupMessage relays an admin's post inside a user topic back
// to that user, preserving the content type. A post in a topic no user maps
// to gets a notice into that topic instead.
func (s *Service) handleAdminGroupMessage(ctx context.Context, msg *telegram.Message) {
	if !msg.IsTopicMessage || msg.MessageThreadID == 0 {
		return
	}
	if msg.From == nil || msg.From.IsBot {
		return
	}
	// Only recognized admins speak for the support team. Anyone else posting
	// in a topic is ignored.
	if !s.isAdmin(ctx, msg.From.ID) {
		return
	}
	user, err := s.users.FindByTopic(ctx, msg.MessageThreadID)
	if err != nil {
		s.logger.Error().Err(err).Int64("topic", msg.MessageThreadID).Msg("topic lookup failed")
		return
	}
	if user == nil {
		s.topicNotice(ctx, msg.MessageThreadID, "⚠️ Cannot find the user for this topic.")
		return
	}

	var sendErr error
	switch kind, fileID, ok := mediaOf(msg); {
	case ok:
		_, sendErr = s.gw.SendMedia(ctx, telegram.SendMediaParams{
			ChatID:  user.ID,
			Kind:    kind,
			FileID:  fileID,
			Caption: msg.Caption,
		})
	case msg.Text != "":
		_, sendErr = s.gw.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: user.ID,
			Text:   msg.Text,
		})
	default:
		_, sendErr = s.gw.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: user.ID,
			Text:   "[unsupported message type]",
		})
	}
	if sendErr != nil {
		s.logger.Warn().Err(sendErr).Int64("user", user.ID).Msg("admin reply delivery failed")
		metrics.RelayFailuresTotal.Inc()
		if _, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:          s.cfg.AdminGroupID,
			MessageThreadID: msg.MessageThreadID,
			Text:            "⚠️ Delivery to the user failed. They may have blocked the bot.",
		}); err != nil {
			s.logger.Warn().Err(err).Int64("topic", msg.MessageThreadID).Msg("delivery failure notice failed")
		}
		return
	}

	s.recordMessage(ctx, user.ID, msg)
}
