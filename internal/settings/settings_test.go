package settings

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, zerolog.Nop()), store
}

func TestDefaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	assert.Equal(t, ModeButton, svc.VerificationMode(ctx))
	assert.Equal(t, DefaultWelcomeMessage, svc.WelcomeMessage(ctx))
	assert.Equal(t, DefaultBlockThreshold, svc.BlockThreshold(ctx))
	assert.Empty(t, svc.BlockKeywords(ctx))
	assert.Empty(t, svc.AutoReplyRules(ctx))
	assert.Zero(t, svc.BackupGroupID(ctx))
	assert.Empty(t, svc.AuthorizedAdmins(ctx))

	for _, key := range ForwardToggles {
		assert.True(t, svc.ForwardAllowed(ctx, key), key)
	}
}

func TestForwardToggleRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetForwardAllowed(ctx, ToggleText, false))
	assert.False(t, svc.ForwardAllowed(ctx, ToggleText))

	// Other toggles stay untouched.
	assert.True(t, svc.ForwardAllowed(ctx, ToggleLink))

	require.NoError(t, svc.SetForwardAllowed(ctx, ToggleText, true))
	assert.True(t, svc.ForwardAllowed(ctx, ToggleText))
}

func TestBlockThreshold_InvalidStoredValueFallsBack(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	store.data[KeyBlockThreshold] = "not a number"
	assert.Equal(t, DefaultBlockThreshold, svc.BlockThreshold(ctx))

	store.data[KeyBlockThreshold] = "0"
	assert.Equal(t, DefaultBlockThreshold, svc.BlockThreshold(ctx))

	store.data[KeyBlockThreshold] = "3"
	assert.Equal(t, 3, svc.BlockThreshold(ctx))
}

func TestBlockKeywords_AddIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	changed, err := svc.AddBlockKeyword(ctx, "spam")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.AddBlockKeyword(ctx, "spam")
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, []string{"spam"}, svc.BlockKeywords(ctx))
}

func TestBlockKeywords_Delete(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddBlockKeyword(ctx, "spam")
	require.NoError(t, err)
	_, err = svc.AddBlockKeyword(ctx, "scam")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBlockKeyword(ctx, "spam"))
	assert.Equal(t, []string{"scam"}, svc.BlockKeywords(ctx))

	// Deleting something absent leaves the list alone.
	require.NoError(t, svc.DeleteBlockKeyword(ctx, "never there"))
	assert.Equal(t, []string{"scam"}, svc.BlockKeywords(ctx))
}

func TestAutoReplyRules_AddAndDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.AddAutoReplyRule(ctx, "price|cost", "See our price list at example.com")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotZero(t, first.ID)

	second, err := svc.AddAutoReplyRule(ctx, "hours", "We answer 9:00-17:00 UTC")
	require.NoError(t, err)

	rules := svc.AutoReplyRules(ctx)
	require.Len(t, rules, 2)
	assert.Equal(t, "price|cost", rules[0].Keywords)

	require.NoError(t, svc.DeleteAutoReplyRule(ctx, first.ID))

	rules = svc.AutoReplyRules(ctx)
	require.Len(t, rules, 1)
	assert.Equal(t, second.ID, rules[0].ID)
}

func TestAuthorizedAdmins(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetAuthorizedAdmins(ctx, []string{"123", "456"}))
	assert.Equal(t, []int64{123, 456}, svc.AuthorizedAdmins(ctx))

	// Replacing with an empty list clears it.
	require.NoError(t, svc.SetAuthorizedAdmins(ctx, nil))
	assert.Empty(t, svc.AuthorizedAdmins(ctx))
}

func TestBackupGroupID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, KeyBackupGroupID, "-1001234567890"))
	assert.Equal(t, int64(-1001234567890), svc.BackupGroupID(ctx))

	require.NoError(t, svc.Delete(ctx, KeyBackupGroupID))
	assert.Zero(t, svc.BackupGroupID(ctx))
}

func TestLogTopicID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	assert.Zero(t, svc.LogTopicID(ctx, KeyProfileLogTopicID))

	require.NoError(t, svc.SetLogTopicID(ctx, KeyProfileLogTopicID, 314))
	assert.Equal(t, int64(314), svc.LogTopicID(ctx, KeyProfileLogTopicID))

	require.NoError(t, svc.ClearLogTopicID(ctx, KeyProfileLogTopicID))
	assert.Zero(t, svc.LogTopicID(ctx, KeyProfileLogTopicID))
}

func TestAdminState_RoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	state, err := svc.AdminState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, svc.SetAdminState(ctx, 1, FieldBlockThreshold))

	state, err = svc.AdminState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, FieldBlockThreshold, state.Awaiting)

	// States are per admin.
	other, err := svc.AdminState(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, svc.ClearAdminState(ctx, 1))
	state, err = svc.AdminState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestAdminState_CorruptValueIsClearedWithError(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	store.data["admin_state:1"] = "{not json"

	state, err := svc.AdminState(ctx, 1)
	assert.Error(t, err)
	assert.Nil(t, state)

	// The corrupt entry is gone; the next read is a clean idle.
	state, err = svc.AdminState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestAdminState_UnknownFieldIsCorrupt(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	store.data["admin_state:1"] = `{"awaiting":"no_such_field"}`

	state, err := svc.AdminState(ctx, 1)
	assert.Error(t, err)
	assert.Nil(t, state)
}
