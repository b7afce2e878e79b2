package relay

import (
	"crypto/rand"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"topicbridge/internal/telegram"
)

// codeAlphabet excludes visually confusable characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateCode returns a random verification code of length n.
func generateCode(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable; fall back to a
		// fixed code rather than panicking inside a message handler.
		return strings.Repeat("A", n)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// userFacts is the displayable identity derived from a Telegram user.
type userFacts struct {
	id        int64
	name      string
	handle    string // "@username" or "none"
	topicName string
	infoCard  string // HTML
}

func factsFor(u *telegram.User) userFacts {
	name := strings.TrimSpace(u.FirstName)
	if u.LastName != "" {
		name = strings.TrimSpace(name + " " + u.LastName)
	}
	if name == "" {
		name = "user"
	}

	handle := "none"
	if u.Username != "" {
		handle = "@" + u.Username
	}

	id := strconv.FormatInt(u.ID, 10)
	topicName := name + " | " + id
	if runes := []rune(topicName); len(runes) > 128 {
		topicName = string(runes[:128])
	}

	infoCard := "<b>👤 User profile</b>\n" +
		"• Username: <code>" + html.EscapeString(handle) + "</code>\n" +
		"• ID: <code>" + id + "</code>"

	return userFacts{
		id:        u.ID,
		name:      name,
		handle:    handle,
		topicName: topicName,
		infoCard:  infoCard,
	}
}

// moderationKeyboard builds the info-card keyboard for the current
// moderation state. Button labels are the inverse of the state: "block" is
// offered while the user is not blocked.
func moderationKeyboard(userID int64, blocked, muted bool) *telegram.InlineKeyboardMarkup {
	id := strconv.FormatInt(userID, 10)

	blockText, blockAction := "🚫 Block user", "block"
	if blocked {
		blockText, blockAction = "✅ Unblock user", "unblock"
	}
	muteText, muteAction := "🔕 Mute notifications", "mute"
	if muted {
		muteText, muteAction = "🔔 Unmute notifications", "unmute"
	}

	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: blockText, CallbackData: blockAction + ":" + id},
				{Text: muteText, CallbackData: muteAction + ":" + id},
			},
			{
				{Text: "👤 View profile", URL: "tg://user?id=" + id},
			},
			{
				{Text: "📌 Pin this card", CallbackData: "pin_card:" + id},
			},
		},
	}
}

// jumpURL builds the deep link into a topic of the admin group.
func jumpURL(adminGroupID, topicID int64) string {
	group := strings.TrimPrefix(strconv.FormatInt(adminGroupID, 10), "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", group, topicID)
}

// withJumpLink returns a copy of markup with a "jump to conversation" row
// appended. Used only on keyboards posted into log topics.
func withJumpLink(markup *telegram.InlineKeyboardMarkup, adminGroupID, topicID int64) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(markup.InlineKeyboard)+1)
	rows = append(rows, markup.InlineKeyboard...)
	rows = append(rows, []telegram.InlineKeyboardButton{
		{Text: "💬 Jump to conversation", URL: jumpURL(adminGroupID, topicID)},
	})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// hasJumpLink reports whether the last keyboard row is a conversation deep
// link, so moderation edits can preserve it.
func hasJumpLink(markup *telegram.InlineKeyboardMarkup) bool {
	if markup == nil || len(markup.InlineKeyboard) == 0 {
		return false
	}
	last := markup.InlineKeyboard[len(markup.InlineKeyboard)-1]
	return len(last) > 0 && strings.Contains(last[0].URL, "t.me/c/")
}

// formatTimestamp renders a unix-seconds timestamp for notices.
func formatTimestamp(unix int64) string {
	if unix == 0 {
		return "time unknown"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05 MST")
}
