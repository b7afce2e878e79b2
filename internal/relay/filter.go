package relay

import (
	"context"
	"fmt"
	"regexp"

	"topicbridge/internal/metrics"
	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

// autoReplyPrefix marks canned responses so users can tell them from a
// human reply.
const autoReplyPrefix = "automatic reply\n\n"

// matchPattern tries pattern as a case-insensitive regular expression
// against text. A pattern that fails to compile is skipped (reported as no
// match) so one bad stored rule cannot block the pipeline.
func (s *Service) matchPattern(pattern, text string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		s.logger.Warn().Str("pattern", pattern).Err(err).Msg("skipping malformed filter pattern")
		return false
	}
	return re.MatchString(text)
}

// applyBlockKeywords scans the plain text body against the block-keyword
// list; captions are left to the category filter. On the first match it
// increments the strike counter, blocks the user at the configured
// threshold, notifies them, and drops the message. Returns true when the
// message was consumed.
func (s *Service) applyBlockKeywords(ctx context.Context, msg *telegram.Message, user *User) bool {
	text := msg.Text
	if text == "" {
		return false
	}
	keywords := s.settings.BlockKeywords(ctx)
	if len(keywords) == 0 {
		return false
	}

	for _, keyword := range keywords {
		if !s.matchPattern(keyword, text) {
			continue
		}

		threshold := s.settings.BlockThreshold(ctx)
		user.StrikeCount++
		blockedNow := user.StrikeCount >= threshold
		if blockedNow {
			user.Blocked = true
		}
		if err := s.users.Put(ctx, user); err != nil {
			s.logger.Error().Err(err).Int64("user", user.ID).Msg("persisting strike failed")
		}

		notice := fmt.Sprintf(
			"⚠️ Your message matched a blocked keyword (%d/%d). It was dropped and will not be forwarded.",
			user.StrikeCount, threshold)
		s.notify(ctx, user.ID, notice)
		if blockedNow {
			s.notify(ctx, user.ID,
				"❌ You have repeatedly triggered blocked keywords and have been blocked automatically. The bot will no longer accept your messages.")
		}

		metrics.FilteredMessagesTotal.WithLabelValues("block_keyword").Inc()
		return true
	}
	return false
}

// applyCategoryFilter classifies the message into its primary content
// category and drops it when that category — or link content, or pure text —
// is denied by configuration. Returns true when the message was dropped.
func (s *Service) applyCategoryFilter(ctx context.Context, msg *telegram.Message) bool {
	allowed := func(key string) bool { return s.settings.ForwardAllowed(ctx, key) }

	forwardable := true
	reason := ""

	// Primary category, by precedence. Exactly one applies.
	switch {
	case msg.ForwardFrom != nil:
		if !allowed(settings.ToggleUserForward) {
			forwardable, reason = false, "message forwarded from a user"
		}
	case msg.ForwardFromChat != nil:
		switch msg.ForwardFromChat.Type {
		case "channel":
			if !allowed(settings.ToggleChannelForward) {
				forwardable, reason = false, "message forwarded from a channel"
			}
		case "group", "supergroup":
			if !allowed(settings.ToggleGroupForward) {
				forwardable, reason = false, "message forwarded from a group"
			}
		}
	case msg.Audio != nil || msg.Voice != nil:
		if !allowed(settings.ToggleAudioVoice) {
			forwardable, reason = false, "audio or voice message"
		}
	case msg.Sticker != nil || msg.Animation != nil:
		if !allowed(settings.ToggleStickerGif) {
			forwardable, reason = false, "sticker or GIF"
		}
	case len(msg.Photo) > 0 || msg.Video != nil || msg.Document != nil:
		if !allowed(settings.ToggleMedia) {
			forwardable, reason = false, "media content (photo/video/file)"
		}
	}

	// Link filtering applies on top of the category outcome: a denied
	// category that also carries a link keeps the category reason with the
	// link reason appended.
	if msg.HasLinkEntity() && !allowed(settings.ToggleLink) {
		if reason != "" {
			reason += " (and contains links)"
		} else {
			reason = "content containing links"
		}
		forwardable = false
	}

	if forwardable && isPureText(msg) && !allowed(settings.ToggleText) {
		forwardable, reason = false, "pure text content"
	}

	if forwardable {
		return false
	}

	s.notify(ctx, msg.Chat.ID,
		"This message was filtered: "+reason+". This kind of content is not forwarded.")
	metrics.FilteredMessagesTotal.WithLabelValues("category").Inc()
	return true
}

// isPureText reports whether the message is text with no media and no
// forward markers.
func isPureText(msg *telegram.Message) bool {
	return msg.Text != "" && !msg.HasMedia() && !msg.IsForwarded()
}

// applyAutoReply answers a text message with the first matching canned
// response. The original message is not relayed. Returns true when a rule
// fired.
func (s *Service) applyAutoReply(ctx context.Context, msg *telegram.Message) bool {
	text := msg.Text
	if text == "" {
		return false
	}
	rules := s.settings.AutoReplyRules(ctx)
	if len(rules) == 0 {
		return false
	}

	for _, rule := range rules {
		if !s.matchPattern(rule.Keywords, text) {
			continue
		}
		s.notify(ctx, msg.Chat.ID, autoReplyPrefix+rule.Response)
		metrics.FilteredMessagesTotal.WithLabelValues("auto_reply").Inc()
		return true
	}
	return false
}
