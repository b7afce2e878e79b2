// Package handlers contains the HTTP handlers for the webhook server.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"topicbridge/internal/relay"
	"topicbridge/internal/telegram"
)

// secretTokenHeader carries the webhook secret Telegram echoes back on
// every delivery once registered via setWebhook.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// updateTimeout bounds the background processing of a single update.
const updateTimeout = 90 * time.Second

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	relay  *relay.Service
	secret string
	logger zerolog.Logger
}

// New creates a Handler with its dependencies.
func New(relaySvc *relay.Service, secret string, logger zerolog.Logger) *Handler {
	return &Handler{
		relay:  relaySvc,
		secret: secret,
		logger: logger,
	}
}

// HandleWebhook accepts one Telegram update. It acknowledges immediately
// and processes the update in the background: Telegram retries deliveries
// that are not answered quickly, which would duplicate messages.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get(secretTokenHeader) != h.secret {
		h.logger.Warn().Str("client_ip", r.RemoteAddr).Msg("webhook delivery with bad secret token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn().Err(err).Msg("undecodable webhook payload")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error().Interface("panic", rec).Int64("update_id", update.UpdateID).Msg("panic while processing update")
			}
		}()
		h.relay.HandleUpdate(ctx, &update)
	}()
}

// HandleHealthz reports liveness.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
