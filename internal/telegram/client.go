// Package telegram is the outbound gateway to the Telegram Bot API. Every
// remote operation the relay performs goes through the single Invoke call
// shape; typed helpers wrap it for the methods in use.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"topicbridge/internal/metrics"
)

// APIError is a Bot API failure response. Description is machine-readable
// enough for the two failure classes the relay recognizes: deleted topics
// and benign "not modified" edits.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %s (code %d)", e.Method, e.Description, e.Code)
}

// IsTopicGone reports whether err says the target forum topic no longer
// exists, which triggers the recreate-once recovery path.
func IsTopicGone(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Description, "thread not found") ||
		strings.Contains(apiErr.Description, "TOPIC_DELETED")
}

// IsNotModified reports whether err is the benign "message is not modified"
// edit failure, treated as a successful no-op.
func IsNotModified(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Description, "message is not modified")
}

// Client calls the Bot API over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  zerolog.Logger
}

// NewClient creates a gateway for the given bot token. baseURL is normally
// "https://api.telegram.org"; tests point it at a local server. A nil
// httpClient gets a 60s-timeout default.
func NewClient(httpClient *http.Client, baseURL, token string, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Invoke posts params to the named Bot API method and decodes the result
// into result when it is non-nil. Failures carry an *APIError when the API
// answered with ok=false.
func (c *Client) Invoke(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling %s params: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.GatewayCallsTotal.WithLabelValues(method, "transport_error").Inc()
		return fmt.Errorf("calling %s: %w", method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.GatewayCallsTotal.WithLabelValues(method, "bad_response").Inc()
		return fmt.Errorf("%s returned non-JSON response (http %d)", method, resp.StatusCode)
	}
	if !out.OK {
		metrics.GatewayCallsTotal.WithLabelValues(method, "api_error").Inc()
		c.logger.Debug().
			Str("method", method).
			Int("code", out.ErrorCode).
			Str("description", out.Description).
			Msg("Bot API call failed")
		return &APIError{Method: method, Code: out.ErrorCode, Description: out.Description}
	}

	metrics.GatewayCallsTotal.WithLabelValues(method, "ok").Inc()
	if result != nil && len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// SendMessageParams are the sendMessage fields in use.
type SendMessageParams struct {
	ChatID              int64                 `json:"chat_id"`
	MessageThreadID     int64                 `json:"message_thread_id,omitempty"`
	Text                string                `json:"text"`
	ParseMode           string                `json:"parse_mode,omitempty"`
	DisableNotification bool                  `json:"disable_notification,omitempty"`
	ReplyMarkup         *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage sends a text message and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	var msg Message
	if err := c.Invoke(ctx, "sendMessage", p, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CopyMessageParams are the copyMessage fields in use.
type CopyMessageParams struct {
	ChatID              int64 `json:"chat_id"`
	MessageThreadID     int64 `json:"message_thread_id,omitempty"`
	FromChatID          int64 `json:"from_chat_id"`
	MessageID           int64 `json:"message_id"`
	DisableNotification bool  `json:"disable_notification,omitempty"`
}

// CopyMessage copies a message without re-encoding and returns the new
// message id on the destination side.
func (c *Client) CopyMessage(ctx context.Context, p CopyMessageParams) (int64, error) {
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.Invoke(ctx, "copyMessage", p, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// CreateForumTopic creates a named topic in a forum supergroup.
func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (*ForumTopic, error) {
	params := struct {
		ChatID int64  `json:"chat_id"`
		Name   string `json:"name"`
	}{ChatID: chatID, Name: name}

	var topic ForumTopic
	if err := c.Invoke(ctx, "createForumTopic", params, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// EditMessageTextParams are the editMessageText fields in use.
type EditMessageTextParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text (and keyboard) of a sent message.
func (c *Client) EditMessageText(ctx context.Context, p EditMessageTextParams) error {
	return c.Invoke(ctx, "editMessageText", p, nil)
}

// EditMessageReplyMarkupParams are the editMessageReplyMarkup fields in use.
type EditMessageReplyMarkupParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageReplyMarkup replaces only the inline keyboard of a sent message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, p EditMessageReplyMarkupParams) error {
	return c.Invoke(ctx, "editMessageReplyMarkup", p, nil)
}

// PinChatMessageParams are the pinChatMessage fields in use.
type PinChatMessageParams struct {
	ChatID              int64 `json:"chat_id"`
	MessageID           int64 `json:"message_id"`
	DisableNotification bool  `json:"disable_notification,omitempty"`
}

// PinChatMessage pins a message in a chat.
func (c *Client) PinChatMessage(ctx context.Context, p PinChatMessageParams) error {
	return c.Invoke(ctx, "pinChatMessage", p, nil)
}

// AnswerCallbackParams are the answerCallbackQuery fields in use.
type AnswerCallbackParams struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery acknowledges an inline-button tap with an optional toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, p AnswerCallbackParams) error {
	return c.Invoke(ctx, "answerCallbackQuery", p, nil)
}

// MediaKind selects the single-media send method for one attachment type.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
)

var mediaMethods = map[MediaKind]string{
	MediaPhoto:     "sendPhoto",
	MediaVideo:     "sendVideo",
	MediaAudio:     "sendAudio",
	MediaVoice:     "sendVoice",
	MediaSticker:   "sendSticker",
	MediaAnimation: "sendAnimation",
	MediaVideoNote: "sendVideoNote",
	MediaDocument:  "sendDocument",
}

// SendMediaParams address one already-uploaded attachment by file id.
type SendMediaParams struct {
	ChatID  int64
	Kind    MediaKind
	FileID  string
	Caption string
}

// SendMedia re-sends a single media attachment using the content-type
// appropriate method (sendPhoto, sendVoice, ...). Stickers and video notes
// carry no caption on the wire; a caption passed for them is dropped.
func (c *Client) SendMedia(ctx context.Context, p SendMediaParams) (*Message, error) {
	method, ok := mediaMethods[p.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported media kind %q", p.Kind)
	}

	params := map[string]any{
		"chat_id":      p.ChatID,
		string(p.Kind): p.FileID,
	}
	if p.Caption != "" && p.Kind != MediaSticker && p.Kind != MediaVideoNote {
		params["caption"] = p.Caption
	}

	var msg Message
	if err := c.Invoke(ctx, method, params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
