package telegram

// Update is one decoded webhook delivery. Exactly one of the payload fields
// is set per update.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message carries the subset of the Bot API message object the relay reads.
type Message struct {
	MessageID       int64  `json:"message_id"`
	MessageThreadID int64  `json:"message_thread_id,omitempty"`
	IsTopicMessage  bool   `json:"is_topic_message,omitempty"`
	Date            int64  `json:"date,omitempty"`
	EditDate        int64  `json:"edit_date,omitempty"`
	Chat            *Chat  `json:"chat,omitempty"`
	From            *User  `json:"from,omitempty"`
	Text            string `json:"text,omitempty"`
	Caption         string `json:"caption,omitempty"`

	Entities        []MessageEntity `json:"entities,omitempty"`
	CaptionEntities []MessageEntity `json:"caption_entities,omitempty"`

	ForwardFrom     *User `json:"forward_from,omitempty"`
	ForwardFromChat *Chat `json:"forward_from_chat,omitempty"`

	Photo     []PhotoSize `json:"photo,omitempty"`
	Video     *Video      `json:"video,omitempty"`
	Audio     *Audio      `json:"audio,omitempty"`
	Voice     *Voice      `json:"voice,omitempty"`
	Sticker   *Sticker    `json:"sticker,omitempty"`
	Animation *Animation  `json:"animation,omitempty"`
	VideoNote *VideoNote  `json:"video_note,omitempty"`
	Document  *Document   `json:"document,omitempty"`

	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// Chat identifies where a message was posted.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

// User identifies a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// MessageEntity marks a span of special text (links, mentions, ...).
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// CallbackQuery is an inline-button interaction.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ForumTopic is the result of createForumTopic.
type ForumTopic struct {
	MessageThreadID int64  `json:"message_thread_id"`
	Name            string `json:"name,omitempty"`
}

// PhotoSize is one resolution of a photo.
type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Media attachments. Only the file id is needed to re-send content.
type (
	Video struct {
		FileID string `json:"file_id"`
	}
	Audio struct {
		FileID string `json:"file_id"`
	}
	Voice struct {
		FileID string `json:"file_id"`
	}
	Sticker struct {
		FileID string `json:"file_id"`
	}
	Animation struct {
		FileID string `json:"file_id"`
	}
	VideoNote struct {
		FileID string `json:"file_id"`
	}
	Document struct {
		FileID   string `json:"file_id"`
		FileName string `json:"file_name,omitempty"`
	}
)

// InlineKeyboardMarkup is an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is one button; exactly one of CallbackData or URL is set.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// HasLinkEntity reports whether the message text or caption carries a
// hyperlink entity.
func (m *Message) HasLinkEntity() bool {
	entities := m.Entities
	if len(entities) == 0 {
		entities = m.CaptionEntities
	}
	for _, e := range entities {
		if e.Type == "url" || e.Type == "text_link" {
			return true
		}
	}
	return false
}

// TextOrCaption returns the textual content of the message, preferring the
// plain text body over a media caption.
func (m *Message) TextOrCaption() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// HasMedia reports whether the message carries any media attachment the
// relay recognizes.
func (m *Message) HasMedia() bool {
	return len(m.Photo) > 0 || m.Video != nil || m.Audio != nil || m.Voice != nil ||
		m.Sticker != nil || m.Animation != nil || m.VideoNote != nil || m.Document != nil
}

// IsForwarded reports whether the message was forwarded from elsewhere.
func (m *Message) IsForwarded() bool {
	return m.ForwardFrom != nil || m.ForwardFromChat != nil
}
