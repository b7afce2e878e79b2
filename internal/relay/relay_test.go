package relay

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

const (
	testAdminGroup   = int64(-100900)
	testPrimaryAdmin = int64(555)
	testUser         = int64(42)
)

// fakeGateway records every outbound call and can be primed with errors.
type fakeGateway struct {
	nextMsgID   int64
	nextTopicID int64

	sent    []telegram.SendMessageParams
	copies  []telegram.CopyMessageParams
	topics  []string
	edits   []telegram.EditMessageTextParams
	markups []telegram.EditMessageReplyMarkupParams
	pins    []telegram.PinChatMessageParams
	answers []telegram.AnswerCallbackParams
	media   []telegram.SendMediaParams

	copyErrs []error // consumed one per CopyMessage call
	editErr  error
	topicErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextMsgID: 1000, nextTopicID: 100}
}

func (g *fakeGateway) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	g.sent = append(g.sent, p)
	g.nextMsgID++
	return &telegram.Message{MessageID: g.nextMsgID, Text: p.Text}, nil
}

func (g *fakeGateway) CopyMessage(_ context.Context, p telegram.CopyMessageParams) (int64, error) {
	g.copies = append(g.copies, p)
	if len(g.copyErrs) > 0 {
		err := g.copyErrs[0]
		g.copyErrs = g.copyErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	g.nextMsgID++
	return g.nextMsgID, nil
}

func (g *fakeGateway) CreateForumTopic(_ context.Context, _ int64, name string) (*telegram.ForumTopic, error) {
	if g.topicErr != nil {
		return nil, g.topicErr
	}
	g.topics = append(g.topics, name)
	g.nextTopicID++
	return &telegram.ForumTopic{MessageThreadID: g.nextTopicID, Name: name}, nil
}

func (g *fakeGateway) EditMessageText(_ context.Context, p telegram.EditMessageTextParams) error {
	g.edits = append(g.edits, p)
	return g.editErr
}

func (g *fakeGateway) EditMessageReplyMarkup(_ context.Context, p telegram.EditMessageReplyMarkupParams) error {
	g.markups = append(g.markups, p)
	return nil
}

func (g *fakeGateway) PinChatMessage(_ context.Context, p telegram.PinChatMessageParams) error {
	g.pins = append(g.pins, p)
	return nil
}

func (g *fakeGateway) AnswerCallbackQuery(_ context.Context, p telegram.AnswerCallbackParams) error {
	g.answers = append(g.answers, p)
	return nil
}

func (g *fakeGateway) SendMedia(_ context.Context, p telegram.SendMediaParams) (*telegram.Message, error) {
	g.media = append(g.media, p)
	g.nextMsgID++
	return &telegram.Message{MessageID: g.nextMsgID}, nil
}

// countTopics returns how many topics with the given name were created.
func (g *fakeGateway) countTopics(name string) int {
	n := 0
	for _, t := range g.topics {
		if t == name {
			n++
		}
	}
	return n
}

// sentTo returns the texts of messages sent to the given chat.
func (g *fakeGateway) sentTo(chatID int64) []string {
	var texts []string
	for _, p := range g.sent {
		if p.ChatID == chatID {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

// memUsers is an in-memory UserStore with the same copy semantics as the
// persistent one: reads never alias the stored record.
type memUsers struct {
	m map[int64]User
}

func (s *memUsers) GetOrCreate(_ context.Context, id int64) (*User, error) {
	if u, ok := s.m[id]; ok {
		copied := u
		return &copied, nil
	}
	u := User{ID: id, State: StateNew}
	s.m[id] = u
	copied := u
	return &copied, nil
}

func (s *memUsers) Get(_ context.Context, id int64) (*User, error) {
	u, ok := s.m[id]
	if !ok {
		return nil, nil
	}
	copied := u
	return &copied, nil
}

func (s *memUsers) Put(_ context.Context, user *User) error {
	s.m[user.ID] = *user
	return nil
}

func (s *memUsers) FindByTopic(_ context.Context, topicID int64) (*User, error) {
	for _, u := range s.m {
		if u.TopicID == topicID && topicID != 0 {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

type memMessages struct {
	m map[string]MessageRecord
}

func (s *memMessages) Put(_ context.Context, userID, messageID int64, rec MessageRecord) error {
	s.m[fmt.Sprintf("%d/%d", userID, messageID)] = rec
	return nil
}

func (s *memMessages) Get(_ context.Context, userID, messageID int64) (*MessageRecord, error) {
	rec, ok := s.m[fmt.Sprintf("%d/%d", userID, messageID)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type memConfig struct {
	data map[string]string
}

func (m *memConfig) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memConfig) Put(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memConfig) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

type fixture struct {
	svc      *Service
	gw       *fakeGateway
	users    *memUsers
	messages *memMessages
	settings *settings.Service
	config   *memConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := newFakeGateway()
	users := &memUsers{m: map[int64]User{}}
	messages := &memMessages{m: map[string]MessageRecord{}}
	cfgStore := &memConfig{data: map[string]string{}}
	settingsSvc := settings.NewService(cfgStore, zerolog.Nop())

	svc := NewService(
		Config{AdminGroupID: testAdminGroup, PrimaryAdminIDs: []int64{testPrimaryAdmin}},
		gw, users, messages, settingsSvc, zerolog.Nop(),
	)
	return &fixture{svc: svc, gw: gw, users: users, messages: messages, settings: settingsSvc, config: cfgStore}
}

// verifiedUser seeds a verified user without going through the challenge.
func (f *fixture) verifiedUser(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, f.users.Put(context.Background(), &User{ID: id, State: StateVerified}))
}

func privateText(userID, messageID int64, text string) *telegram.Update {
	return &telegram.Update{Message: &telegram.Message{
		MessageID: messageID,
		Date:      1700000000,
		Chat:      &telegram.Chat{ID: userID, Type: "private"},
		From:      &telegram.User{ID: userID, FirstName: "Alice", Username: "alice"},
		Text:      text,
	}}
}

func topicMessage(adminID, topicID, messageID int64, text string) *telegram.Update {
	return &telegram.Update{Message: &telegram.Message{
		MessageID:       messageID,
		MessageThreadID: topicID,
		IsTopicMessage:  true,
		Date:            1700000500,
		Chat:            &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
		From:            &telegram.User{ID: adminID, FirstName: "Admin"},
		Text:            text,
	}}
}

func callback(fromID int64, data string, msg *telegram.Message) *telegram.Update {
	return &telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb-1",
		From:    &telegram.User{ID: fromID, FirstName: "Admin"},
		Message: msg,
		Data:    data,
	}}
}

func topicGoneErr() error {
	return &telegram.APIError{Method: "copyMessage", Code: 400, Description: "Bad Request: message thread not found"}
}

func TestStart_IssuesButtonChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "/start"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, StatePending, user.State)
	assert.Empty(t, user.VerificationCode)

	require.Len(t, f.gw.sent, 1)
	challenge := f.gw.sent[0]
	assert.Equal(t, testUser, challenge.ChatID)
	require.NotNil(t, challenge.ReplyMarkup)
	assert.Equal(t, callbackVerify, challenge.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestVerifyButton_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "/start"))

	tap := callback(testUser, callbackVerify, &telegram.Message{
		MessageID: 500,
		Chat:      &telegram.Chat{ID: testUser, Type: "private"},
		Text:      "challenge",
	})
	f.svc.HandleUpdate(ctx, tap)

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, StateVerified, user.State)

	require.NotEmpty(t, f.gw.answers)
	assert.Equal(t, "✅ Verified!", f.gw.answers[len(f.gw.answers)-1].Text)

	// Second tap changes nothing and answers with the already-verified alert.
	sendsBefore := len(f.gw.sent)
	f.svc.HandleUpdate(ctx, tap)

	user, err = f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, StateVerified, user.State)
	assert.Equal(t, sendsBefore, len(f.gw.sent))
	last := f.gw.answers[len(f.gw.answers)-1]
	assert.Equal(t, "You are already verified!", last.Text)
	assert.True(t, last.ShowAlert)
}

func TestCodeVerification_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.settings.Set(ctx, settings.KeyVerificationMode, settings.ModeCode))

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "/start"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, StatePending, user.State)
	require.Len(t, user.VerificationCode, 4)

	// Wrong answer keeps the user pending.
	f.svc.HandleUpdate(ctx, privateText(testUser, 2, "WRONG"))
	user, err = f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, StatePending, user.State)

	// The right code, in the wrong case with whitespace, passes.
	answer := "  " + strings.ToLower(user.VerificationCode) + " "
	f.svc.HandleUpdate(ctx, privateText(testUser, 3, answer))

	user, err = f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, StateVerified, user.State)
	assert.Empty(t, user.VerificationCode)
}

func TestRelay_CreatesTopicOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "first message"))
	f.svc.HandleUpdate(ctx, privateText(testUser, 2, "second message"))

	assert.Equal(t, 1, f.gw.countTopics("Alice | 42"))
	assert.Equal(t, 1, f.gw.countTopics("👤 User profiles"))

	require.Len(t, f.gw.copies, 2)
	assert.Equal(t, f.gw.copies[0].MessageThreadID, f.gw.copies[1].MessageThreadID)
	assert.Equal(t, testAdminGroup, f.gw.copies[0].ChatID)
	assert.Equal(t, testUser, f.gw.copies[0].FromChatID)

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.NotZero(t, user.TopicID)
	assert.NotZero(t, user.InfoCardMsgID)
}

func TestRelay_RecreatesDeletedTopicOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))
	firstTopic := f.gw.copies[0].MessageThreadID

	// The admin deletes the topic; the next copy fails once.
	f.gw.copyErrs = []error{topicGoneErr()}
	f.svc.HandleUpdate(ctx, privateText(testUser, 2, "hello again"))

	assert.Equal(t, 2, f.gw.countTopics("Alice | 42"))
	require.Len(t, f.gw.copies, 3)
	assert.NotEqual(t, firstTopic, f.gw.copies[2].MessageThreadID)

	// The user saw no failure notice.
	for _, text := range f.gw.sentTo(testUser) {
		assert.NotContains(t, text, "could not be delivered")
	}

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, f.gw.copies[2].MessageThreadID, user.TopicID)
}

func TestRelay_RecreatesTopicOnGenericCopyFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))
	firstTopic := f.gw.copies[0].MessageThreadID

	// The API does not always report a vanished topic as such. Any copy
	// failure gets the same recreate-and-retry treatment.
	f.gw.copyErrs = []error{&telegram.APIError{Method: "copyMessage", Code: 500, Description: "Internal Server Error"}}
	f.svc.HandleUpdate(ctx, privateText(testUser, 2, "hello again"))

	assert.Equal(t, 2, f.gw.countTopics("Alice | 42"))
	require.Len(t, f.gw.copies, 3)
	assert.NotEqual(t, firstTopic, f.gw.copies[2].MessageThreadID)

	for _, text := range f.gw.sentTo(testUser) {
		assert.NotContains(t, text, "could not be delivered")
	}
}

func TestRelay_SingleFailureNoticeWhenRecoveryFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))

	// Both the copy and its one retry hit a deleted topic.
	f.gw.copyErrs = []error{topicGoneErr(), topicGoneErr()}
	f.svc.HandleUpdate(ctx, privateText(testUser, 2, "hello again"))

	notices := 0
	for _, text := range f.gw.sentTo(testUser) {
		if strings.Contains(text, "could not be delivered") {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
	// Exactly one retry: the original copy plus one more.
	require.Len(t, f.gw.copies, 3)
}

func TestBlockedUser_IsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Put(ctx, &User{ID: testUser, State: StateVerified, Blocked: true}))

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "anyone there?"))

	assert.Empty(t, f.gw.sent)
	assert.Empty(t, f.gw.copies)
}

func TestMutedUser_CopiesWithoutNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Put(ctx, &User{ID: testUser, State: StateVerified, Muted: true}))

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "quiet message"))

	require.Len(t, f.gw.copies, 1)
	assert.True(t, f.gw.copies[0].DisableNotification)
}

func TestBlockKeywords_StrikesThenAutoblock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	require.NoError(t, f.settings.Set(ctx, settings.KeyBlockThreshold, "2"))
	_, err := f.settings.AddBlockKeyword(ctx, "spam")
	require.NoError(t, err)

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "free SPAM offer"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, user.StrikeCount)
	assert.False(t, user.Blocked)
	assert.Empty(t, f.gw.copies)

	texts := f.gw.sentTo(testUser)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "(1/2)")

	// Second strike reaches the threshold: blocked, strike notice plus
	// autoblock notice.
	f.svc.HandleUpdate(ctx, privateText(testUser, 2, "more spam"))

	user, err = f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, user.StrikeCount)
	assert.True(t, user.Blocked)

	texts = f.gw.sentTo(testUser)
	require.Len(t, texts, 3)
	assert.Contains(t, texts[1], "(2/2)")
	assert.Contains(t, texts[2], "blocked")

	// Blocked now: further messages produce nothing at all.
	sendsBefore := len(f.gw.sent)
	f.svc.HandleUpdate(ctx, privateText(testUser, 3, "hello?"))
	assert.Equal(t, sendsBefore, len(f.gw.sent))
	assert.Empty(t, f.gw.copies)
}

func TestBlockKeywords_CaptionNotScanned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	_, err := f.settings.AddBlockKeyword(ctx, "spam")
	require.NoError(t, err)

	// Keyword scanning covers the plain text body only; a matching caption
	// leaves the message to the category filter, which allows media by
	// default.
	update := &telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		Chat:      &telegram.Chat{ID: testUser, Type: "private"},
		From:      &telegram.User{ID: testUser, FirstName: "Alice"},
		Photo:     []telegram.PhotoSize{{FileID: "photo-1"}},
		Caption:   "totally spam",
	}}
	f.svc.HandleUpdate(ctx, update)

	require.Len(t, f.gw.copies, 1)
	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Zero(t, user.StrikeCount)
}

func TestCategoryFilter_PureText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	require.NoError(t, f.settings.SetForwardAllowed(ctx, settings.ToggleText, false))

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "just words"))

	assert.Empty(t, f.gw.copies)
	texts := f.gw.sentTo(testUser)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "filtered: pure text content")
}

func TestCategoryFilter_MediaWithLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	require.NoError(t, f.settings.SetForwardAllowed(ctx, settings.ToggleMedia, false))
	require.NoError(t, f.settings.SetForwardAllowed(ctx, settings.ToggleLink, false))

	update := &telegram.Update{Message: &telegram.Message{
		MessageID:       1,
		Chat:            &telegram.Chat{ID: testUser, Type: "private"},
		From:            &telegram.User{ID: testUser, FirstName: "Alice"},
		Photo:           []telegram.PhotoSize{{FileID: "photo-1"}},
		Caption:         "look at https://example.com",
		CaptionEntities: []telegram.MessageEntity{{Type: "url", Offset: 8, Length: 19}},
	}}
	f.svc.HandleUpdate(ctx, update)

	assert.Empty(t, f.gw.copies)
	texts := f.gw.sentTo(testUser)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "media content (photo/video/file) (and contains links)")
}

func TestCategoryFilter_ForwardPrecedesMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	require.NoError(t, f.settings.SetForwardAllowed(ctx, settings.ToggleChannelForward, false))

	// A photo forwarded from a channel is classified as a channel forward,
	// not as media.
	update := &telegram.Update{Message: &telegram.Message{
		MessageID:       1,
		Chat:            &telegram.Chat{ID: testUser, Type: "private"},
		From:            &telegram.User{ID: testUser, FirstName: "Alice"},
		ForwardFromChat: &telegram.Chat{ID: -100111, Type: "channel"},
		Photo:           []telegram.PhotoSize{{FileID: "photo-1"}},
	}}
	f.svc.HandleUpdate(ctx, update)

	assert.Empty(t, f.gw.copies)
	texts := f.gw.sentTo(testUser)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "forwarded from a channel")
}

func TestAutoReply_AnswersWithoutRelaying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	_, err := f.settings.AddAutoReplyRule(ctx, "price|cost", "Our price list: example.com/prices")
	require.NoError(t, err)

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "What does it COST?"))

	assert.Empty(t, f.gw.copies)
	texts := f.gw.sentTo(testUser)
	require.Len(t, texts, 1)
	assert.Equal(t, "automatic reply\n\nOur price list: example.com/prices", texts[0])
}

func TestAdminReply_TextReachesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	require.NotZero(t, user.TopicID)

	f.svc.HandleUpdate(ctx, topicMessage(testPrimaryAdmin, user.TopicID, 900, "how can we help?"))

	texts := f.gw.sentTo(testUser)
	assert.Contains(t, texts, "how can we help?")

	// The reply content is recorded for edit reconciliation.
	rec, err := f.messages.Get(ctx, testUser, 900)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "how can we help?", rec.Text)
}

func TestAdminReply_MediaUsesTypedSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)

	update := &telegram.Update{Message: &telegram.Message{
		MessageID:       901,
		MessageThreadID: user.TopicID,
		IsTopicMessage:  true,
		Chat:            &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
		From:            &telegram.User{ID: testPrimaryAdmin},
		Voice:           &telegram.Voice{FileID: "voice-1"},
	}}
	f.svc.HandleUpdate(ctx, update)

	require.Len(t, f.gw.media, 1)
	assert.Equal(t, telegram.MediaVoice, f.gw.media[0].Kind)
	assert.Equal(t, "voice-1", f.gw.media[0].FileID)
	assert.Equal(t, testUser, f.gw.media[0].ChatID)
}

func TestAdminReply_IgnoresNonAdminMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	require.NotZero(t, user.TopicID)

	// A group member who is neither a primary nor an authorized admin
	// cannot speak for the support team.
	f.svc.HandleUpdate(ctx, topicMessage(999, user.TopicID, 900, "i am not an admin"))

	assert.Empty(t, f.gw.sentTo(testUser))
	assert.Empty(t, f.gw.media)
	rec, err := f.messages.Get(ctx, testUser, 900)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAdminEdit_IgnoresNonAdminMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	f.svc.HandleUpdate(ctx, topicMessage(testPrimaryAdmin, user.TopicID, 900, "original reply"))

	edited := &telegram.Update{EditedMessage: &telegram.Message{
		MessageID:       900,
		MessageThreadID: user.TopicID,
		IsTopicMessage:  true,
		EditDate:        1700000600,
		Chat:            &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
		From:            &telegram.User{ID: 999, FirstName: "Member"},
		Text:            "tampered reply",
	}}
	f.svc.HandleUpdate(ctx, edited)

	for _, text := range f.gw.sentTo(testUser) {
		assert.NotContains(t, text, "tampered reply")
	}
	rec, err := f.messages.Get(ctx, testUser, 900)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "original reply", rec.Text)
}

func TestAdminReply_UnmappedTopicGetsNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.HandleUpdate(ctx, topicMessage(testPrimaryAdmin, 12345, 900, "anyone here?"))

	var notice string
	for _, p := range f.gw.sent {
		if p.ChatID == testAdminGroup && p.MessageThreadID == 12345 {
			notice = p.Text
		}
	}
	assert.Contains(t, notice, "Cannot find the user for this topic")
}

func TestUserEdit_NoticeWithBeforeAndAfter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "original text"))

	edited := &telegram.Update{EditedMessage: &telegram.Message{
		MessageID: 1,
		EditDate:  1700000200,
		Chat:      &telegram.Chat{ID: testUser, Type: "private"},
		From:      &telegram.User{ID: testUser, FirstName: "Alice"},
		Text:      "corrected text",
	}}
	f.svc.HandleUpdate(ctx, edited)

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)

	var notice string
	for _, p := range f.gw.sent {
		if p.ChatID == testAdminGroup && p.MessageThreadID == user.TopicID && strings.Contains(p.Text, "edited") {
			notice = p.Text
		}
	}
	require.NotEmpty(t, notice)
	assert.Contains(t, notice, "original text")
	assert.Contains(t, notice, "corrected text")

	// The record now holds the new content.
	rec, err := f.messages.Get(ctx, testUser, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "corrected text", rec.Text)
}

func TestUserEdit_UnknownOriginalShowsPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "seed topic"))

	edited := &telegram.Update{EditedMessage: &telegram.Message{
		MessageID: 77, // never relayed
		EditDate:  1700000300,
		Chat:      &telegram.Chat{ID: testUser, Type: "private"},
		Text:      "new content",
	}}
	f.svc.HandleUpdate(ctx, edited)

	found := false
	for _, p := range f.gw.sent {
		if strings.Contains(p.Text, "(original content unknown)") {
			found = true
		}
	}
	assert.True(t, found)

	// No record is fabricated for a message that was never stored.
	rec, err := f.messages.Get(ctx, testUser, 77)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestModeration_BlockViaCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hello"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)

	card := &telegram.Message{
		MessageID:       user.InfoCardMsgID,
		MessageThreadID: user.TopicID,
		Chat:            &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
	}
	f.svc.HandleUpdate(ctx, callback(testPrimaryAdmin, fmt.Sprintf("block:%d", testUser), card))

	user, err = f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.True(t, user.Blocked)

	// The tapped keyboard was refreshed, and a block-log card exists.
	require.NotEmpty(t, f.gw.markups)
	assert.NotZero(t, user.BlockLogMsgID)

	// The block log topic was created on demand.
	assert.Contains(t, f.gw.topics, "🛡 Moderation log")
}

func TestModeration_UnblockKeepsStrikes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Put(ctx, &User{ID: testUser, State: StateVerified, Blocked: true, StrikeCount: 5, TopicID: 300}))

	card := &telegram.Message{
		MessageID:       10,
		MessageThreadID: 300,
		Chat:            &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
	}
	f.svc.HandleUpdate(ctx, callback(testPrimaryAdmin, fmt.Sprintf("unblock:%d", testUser), card))

	// Only a fresh topic resets strikes: an unblocked repeat offender
	// re-blocks on their next strike.
	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.False(t, user.Blocked)
	assert.Equal(t, 5, user.StrikeCount)
}

func TestModeration_BackfillFillsOnlyMissingRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Put(ctx, &User{ID: testUser, State: StateVerified, TopicID: 300, InfoCardMsgID: 10}))

	// Acting from a stale duplicate card must not re-point future edits at
	// it while the real card's ref is intact.
	stale := &telegram.Message{
		MessageID:       99,
		MessageThreadID: 300,
		Chat:            &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
	}
	f.svc.HandleUpdate(ctx, callback(testPrimaryAdmin, fmt.Sprintf("mute:%d", testUser), stale))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.True(t, user.Muted)
	assert.Equal(t, int64(10), user.InfoCardMsgID)

	// With the ref lost, the tapped card is adopted.
	user.InfoCardMsgID = 0
	require.NoError(t, f.users.Put(ctx, user))
	f.svc.HandleUpdate(ctx, callback(testPrimaryAdmin, fmt.Sprintf("unmute:%d", testUser), stale))

	user, err = f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(99), user.InfoCardMsgID)
}

func TestModeration_PinAdoptsTappedCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Put(ctx, &User{ID: testUser, State: StateVerified, TopicID: 300, InfoCardMsgID: 10}))

	card := &telegram.Message{
		MessageID:       99,
		MessageThreadID: 300,
		Chat:            &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
	}
	f.svc.HandleUpdate(ctx, callback(testPrimaryAdmin, fmt.Sprintf("pin_card:%d", testUser), card))

	require.Len(t, f.gw.pins, 1)
	assert.Equal(t, int64(99), f.gw.pins[0].MessageID)

	// Pinning deliberately takes over the tapped card, replacing the ref.
	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(99), user.InfoCardMsgID)
}

func TestModeration_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)

	card := &telegram.Message{
		MessageID: 10,
		Chat:      &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
	}
	f.svc.HandleUpdate(ctx, callback(testUser, fmt.Sprintf("block:%d", testUser), card))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.False(t, user.Blocked)

	require.Len(t, f.gw.answers, 1)
	assert.Contains(t, f.gw.answers[0].Text, "Not authorized")
}

func TestModeration_AuthorizedAdminsFromSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	require.NoError(t, f.settings.SetAuthorizedAdmins(ctx, []string{"777"}))

	card := &telegram.Message{
		MessageID: 10,
		Chat:      &telegram.Chat{ID: testAdminGroup, Type: "supergroup"},
	}
	f.svc.HandleUpdate(ctx, callback(777, fmt.Sprintf("mute:%d", testUser), card))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	assert.True(t, user.Muted)
}

func TestAdminForceVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.settings.SetAuthorizedAdmins(ctx, []string{"777"}))

	// An authorized admin messaging the bot skips the challenge entirely.
	f.svc.HandleUpdate(ctx, privateText(777, 1, "checking in"))

	user, err := f.users.Get(ctx, 777)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, StateVerified, user.State)
	require.Len(t, f.gw.copies, 1)
}

func TestPrimaryAdmin_StartOpensMenu(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.HandleUpdate(ctx, privateText(testPrimaryAdmin, 1, "/start"))

	require.Len(t, f.gw.sent, 1)
	menu := f.gw.sent[0]
	assert.Equal(t, testPrimaryAdmin, menu.ChatID)
	assert.Contains(t, menu.Text, "Bot settings")
	require.NotNil(t, menu.ReplyMarkup)
}

func TestAdminInput_SlashCancelAbortsEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.settings.SetAdminState(ctx, testPrimaryAdmin, settings.FieldWelcomeMessage))

	f.svc.HandleUpdate(ctx, privateText(testPrimaryAdmin, 1, "/cancel"))

	// The command is consumed, never stored as the field's value.
	assert.Equal(t, settings.DefaultWelcomeMessage, f.settings.WelcomeMessage(ctx))

	state, err := f.settings.AdminState(ctx, testPrimaryAdmin)
	require.NoError(t, err)
	assert.Nil(t, state)

	texts := f.gw.sentTo(testPrimaryAdmin)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Cancelled")
}

func TestBackupFanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser(t, testUser)
	require.NoError(t, f.settings.Set(ctx, settings.KeyBackupGroupID, "-100555"))

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "back me up"))

	texts := f.gw.sentTo(-100555)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "back me up")
}

func TestNewUser_NonCommandTextStartsVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.HandleUpdate(ctx, privateText(testUser, 1, "hi, I need help"))

	user, err := f.users.Get(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, StatePending, user.State)
	require.Len(t, f.gw.sent, 1)
}
