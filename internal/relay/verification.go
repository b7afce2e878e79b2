package relay

import (
	"context"
	"html"
	"strings"

	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

// callbackVerify is the callback token on the one-click confirmation button.
const callbackVerify = "action:verify_user"

// startVerification issues the configured challenge and moves the user to
// pending_verification. Safe to call again for a user already pending: the
// challenge is simply reissued (fresh code in code mode).
func (s *Service) startVerification(ctx context.Context, msg *telegram.Message) {
	userID := msg.Chat.ID
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user", userID).Msg("loading user failed")
		return
	}
	if user.Blocked {
		return
	}
	if user.State == StateVerified {
		s.notify(ctx, userID, "You are already verified. Just send your message.")
		return
	}

	welcome := s.settings.WelcomeMessage(ctx)
	facts := factsFor(greetable(msg, user))
	greeting := facts.name
	if facts.handle != "none" {
		greeting = facts.handle
	}

	switch s.settings.VerificationMode(ctx) {
	case settings.ModeCode:
		code := generateCode(4)
		user.State = StatePending
		user.VerificationCode = code
		if err := s.users.Put(ctx, user); err != nil {
			s.logger.Error().Err(err).Int64("user", userID).Msg("storing verification code failed")
			return
		}
		text := "🔐 <b>Verification</b>\n\n" +
			"Welcome " + html.EscapeString(greeting) + "!\n" +
			html.EscapeString(welcome) + "\n\n" +
			"🤖 <b>Please send this code back to me:</b>\n" +
			"<code>" + code + "</code>"
		s.notifyHTML(ctx, userID, text)

	default: // button
		user.State = StatePending
		user.VerificationCode = ""
		if err := s.users.Put(ctx, user); err != nil {
			s.logger.Error().Err(err).Int64("user", userID).Msg("storing verification state failed")
			return
		}
		text := "🔐 <b>Verification</b>\n\n" +
			"Welcome " + html.EscapeString(greeting) + "!\n\n" +
			html.EscapeString(welcome) + "\n\n" +
			"👇 <b>Tap the button below to verify:</b>"
		_, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:    userID,
			Text:      text,
			ParseMode: "HTML",
			ReplyMarkup: &telegram.InlineKeyboardMarkup{
				InlineKeyboard: [][]telegram.InlineKeyboardButton{
					{{Text: "✅ Tap here to verify", CallbackData: callbackVerify}},
				},
			},
		})
		if err != nil {
			s.logger.Warn().Err(err).Int64("user", userID).Msg("sending verification challenge failed")
		}
	}
}

// continueVerification handles a text message from a pending user.
func (s *Service) continueVerification(ctx context.Context, msg *telegram.Message, user *User) {
	userID := user.ID

	if s.settings.VerificationMode(ctx) == settings.ModeButton {
		s.notify(ctx, userID, "👇 Please tap the verification button above; there is no need to send text.")
		return
	}

	// Mode is code but no code is stored (e.g. the mode was switched while
	// pending): restart the challenge instead of erroring.
	if user.VerificationCode == "" {
		s.startVerification(ctx, msg)
		return
	}

	answer := strings.TrimSpace(msg.Text)
	if strings.EqualFold(answer, user.VerificationCode) {
		user.State = StateVerified
		user.VerificationCode = ""
		if err := s.users.Put(ctx, user); err != nil {
			s.logger.Error().Err(err).Int64("user", userID).Msg("storing verified state failed")
			return
		}
		s.notify(ctx, userID, "🎉 Verification passed! You can start chatting now.")
	} else {
		s.notify(ctx, userID, "❌ Wrong code. Please check and resend it, or send /start for a new code.")
	}
}

// handleVerifyButton processes a tap on the confirmation button. Re-tapping
// after verification never changes state and always answers with the
// "already verified" notice.
func (s *Service) handleVerifyButton(ctx context.Context, cq *telegram.CallbackQuery) {
	userID := cq.From.ID
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user", userID).Msg("loading user failed")
		return
	}

	if user.State == StateVerified {
		s.answerCallback(ctx, cq.ID, "You are already verified!", true)
		return
	}

	user.State = StateVerified
	user.VerificationCode = ""
	if err := s.users.Put(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("user", userID).Msg("storing verified state failed")
		s.answerCallback(ctx, cq.ID, "❌ Something went wrong, please try again.", true)
		return
	}
	s.answerCallback(ctx, cq.ID, "✅ Verified!", false)

	// Best effort: strip the button off the challenge message.
	if cq.Message != nil {
		err := s.gw.EditMessageText(ctx, telegram.EditMessageTextParams{
			ChatID:      userID,
			MessageID:   cq.Message.MessageID,
			Text:        cq.Message.Text + "\n\n✅ Verified",
			ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{}},
		})
		if err != nil && !telegram.IsNotModified(err) {
			s.logger.Debug().Err(err).Msg("clearing challenge keyboard failed")
		}
	}

	s.notify(ctx, userID, "🎉 Verification passed! You can start sending messages.")
}

// greetable builds a telegram.User for greeting text from whatever identity
// is at hand: the live sender if present, else the stored profile.
func greetable(msg *telegram.Message, user *User) *telegram.User {
	if msg.From != nil {
		return msg.From
	}
	u := &telegram.User{ID: user.ID}
	if user.Profile != nil {
		u.FirstName = user.Profile.DisplayName
		if strings.HasPrefix(user.Profile.Handle, "@") {
			u.Username = strings.TrimPrefix(user.Profile.Handle, "@")
		}
	}
	return u
}

func (s *Service) answerCallback(ctx context.Context, id, text string, alert bool) {
	err := s.gw.AnswerCallbackQuery(ctx, telegram.AnswerCallbackParams{
		CallbackQueryID: id,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("answering callback failed")
	}
}
