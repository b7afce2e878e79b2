package relay

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"topicbridge/internal/metrics"
	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

// Gateway is the outbound Bot API surface the relay uses. *telegram.Client
// implements it; tests substitute a recording fake.
type Gateway interface {
	SendMessage(ctx context.Context, p telegram.SendMessageParams) (*telegram.Message, error)
	CopyMessage(ctx context.Context, p telegram.CopyMessageParams) (int64, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (*telegram.ForumTopic, error)
	EditMessageText(ctx context.Context, p telegram.EditMessageTextParams) error
	EditMessageReplyMarkup(ctx context.Context, p telegram.EditMessageReplyMarkupParams) error
	PinChatMessage(ctx context.Context, p telegram.PinChatMessageParams) error
	AnswerCallbackQuery(ctx context.Context, p telegram.AnswerCallbackParams) error
	SendMedia(ctx context.Context, p telegram.SendMediaParams) (*telegram.Message, error)
}

// Config is the static configuration the relay needs.
type Config struct {
	// AdminGroupID is the forum supergroup hosting the per-user topics.
	AdminGroupID int64

	// PrimaryAdminIDs come from the environment; they bypass verification
	// and own the configuration menu.
	PrimaryAdminIDs []int64
}

// Service is the relay engine. It holds no authoritative user state; every
// moderation decision re-reads the store.
type Service struct {
	cfg      Config
	gw       Gateway
	users    UserStore
	messages MessageStore
	settings *settings.Service
	logger   zerolog.Logger
}

// NewService wires the relay engine.
func NewService(cfg Config, gw Gateway, users UserStore, messages MessageStore, st *settings.Service, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		gw:       gw,
		users:    users,
		messages: messages,
		settings: st,
		logger:   logger,
	}
}

// HandleUpdate classifies one webhook update and dispatches it. It never
// returns an error: every failure path ends in a logged, user- or
// admin-facing notice.
func (s *Service) HandleUpdate(ctx context.Context, update *telegram.Update) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil {
			return
		}
		if msg.Chat.Type == "private" {
			metrics.UpdatesTotal.WithLabelValues("private_message").Inc()
			s.handlePrivateMessage(ctx, msg)
		} else if msg.Chat.ID == s.cfg.AdminGroupID {
			metrics.UpdatesTotal.WithLabelValues("admin_group_message").Inc()
			s.handleAdminGroupMessage(ctx, msg)
		}

	case update.EditedMessage != nil:
		msg := update.EditedMessage
		if msg.Chat == nil {
			return
		}
		if msg.Chat.Type == "private" {
			metrics.UpdatesTotal.WithLabelValues("user_edit").Inc()
			s.handleUserEdit(ctx, msg)
		} else if msg.Chat.ID == s.cfg.AdminGroupID {
			metrics.UpdatesTotal.WithLabelValues("admin_edit").Inc()
			s.handleAdminEdit(ctx, msg)
		}

	case update.CallbackQuery != nil:
		metrics.UpdatesTotal.WithLabelValues("callback").Inc()
		s.handleCallback(ctx, update.CallbackQuery)
	}
}

func (s *Service) isPrimaryAdmin(id int64) bool {
	for _, adminID := range s.cfg.PrimaryAdminIDs {
		if adminID == id {
			return true
		}
	}
	return false
}

// isAdmin reports whether id is a primary admin or appears on the
// configured authorized-admin list.
func (s *Service) isAdmin(ctx context.Context, id int64) bool {
	if s.isPrimaryAdmin(id) {
		return true
	}
	for _, adminID := range s.settings.AuthorizedAdmins(ctx) {
		if adminID == id {
			return true
		}
	}
	return false
}

// handlePrivateMessage runs the inbound pipeline for a direct message:
// admin shortcuts, block silence, verification gating, then filtering and
// relay for verified users.
func (s *Service) handlePrivateMessage(ctx context.Context, msg *telegram.Message) {
	userID := msg.Chat.ID
	text := msg.Text
	isPrimary := s.isPrimaryAdmin(userID)

	if text == "/start" || text == "/help" {
		if isPrimary {
			s.sendMainMenu(ctx, userID, 0)
		} else {
			s.startVerification(ctx, msg)
		}
		return
	}

	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user", userID).Msg("loading user failed")
		return
	}

	// Blocked users get no response at all.
	if user.Blocked {
		return
	}

	if isPrimary {
		state, err := s.settings.AdminState(ctx, userID)
		if err != nil {
			s.notify(ctx, userID, "⚠️ Your pending input state was corrupt and has been reset. Send /start to open the menu again.")
			return
		}
		if state != nil {
			s.handleAdminInput(ctx, userID, text, state.Awaiting)
			return
		}
	}

	// Admins bypass the verification machine entirely.
	if user.State != StateVerified && s.isAdmin(ctx, userID) {
		user.State = StateVerified
		if err := s.users.Put(ctx, user); err != nil {
			s.logger.Error().Err(err).Int64("user", userID).Msg("forcing admin verification failed")
			return
		}
	}

	switch user.State {
	case StateVerified:
		s.processVerifiedMessage(ctx, msg, user)
	case StatePending:
		s.continueVerification(ctx, msg, user)
	case StateNew:
		if text != "" && !strings.HasPrefix(text, "/") {
			s.startVerification(ctx, msg)
		} else {
			s.notify(ctx, userID, "Send /start to begin.")
		}
	}
}

// processVerifiedMessage runs the filtering pipeline in fixed order; the
// first terminal outcome wins, otherwise the message is relayed.
func (s *Service) processVerifiedMessage(ctx context.Context, msg *telegram.Message, user *User) {
	if s.applyBlockKeywords(ctx, msg, user) {
		return
	}
	if s.applyCategoryFilter(ctx, msg) {
		return
	}
	if s.applyAutoReply(ctx, msg) {
		return
	}
	s.relayToTopic(ctx, msg, user)
}

// notify sends a plain text message, logging delivery failures.
func (s *Service) notify(ctx context.Context, chatID int64, text string) {
	_, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat", chatID).Msg("notice delivery failed")
	}
}

// notifyHTML is notify with HTML formatting enabled.
func (s *Service) notifyHTML(ctx context.Context, chatID int64, text string) {
	_, err := s.gw.SendMessage(ctx, telegram.SendMessageParams{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat", chatID).Msg("notice delivery failed")
	}
}
