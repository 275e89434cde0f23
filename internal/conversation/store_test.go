package conversation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/conversation"
)

func newStore(t *testing.T) *conversation.Store {
	t.Helper()
	store, err := conversation.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	conv, err := store.Create(ctx, "u1", "Dinner plans", "MetaRec")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)

	_, err = store.AddMessage(ctx, "u1", conv.ID, "user", "I want spicy food")
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, "u1", conv.ID, "assistant", "Any cuisine preference?")
	require.NoError(t, err)

	got, err := store.Get(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "I want spicy food", got.Messages[0].Content)
	assert.Equal(t, "Dinner plans", got.Title)

	require.NoError(t, store.Rename(ctx, "u1", conv.ID, "Spicy night"))
	got, err = store.Get(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spicy night", got.Title)

	require.NoError(t, store.Delete(ctx, "u1", conv.ID))
	_, err = store.Get(ctx, "u1", conv.ID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first, err := store.Create(ctx, "u1", "first", "")
	require.NoError(t, err)
	second, err := store.Create(ctx, "u1", "second", "")
	require.NoError(t, err)

	// Touch the first conversation so it becomes the most recent.
	_, err = store.AddMessage(ctx, "u1", first.ID, "user", "hello")
	require.NoError(t, err)

	summaries, err := store.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, first.ID, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].MessageCount)
	assert.Equal(t, second.ID, summaries[1].ID)
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	conv, err := store.Create(ctx, "u1", "prefs", "")
	require.NoError(t, err)

	prefs, err := store.Preferences(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, prefs)

	want := map[string]any{
		"flavor_profiles": []any{"spicy"},
		"location":        "Chinatown",
	}
	require.NoError(t, store.UpdatePreferences(ctx, "u1", conv.ID, want))

	got, err := store.Preferences(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUserPreferences(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	// Unknown user reads as empty, not an error.
	prefs, err := store.UserPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, prefs)

	first := map[string]any{
		"restaurant_types": []any{"hawker"},
		"dining_purpose":   "casual",
	}
	require.NoError(t, store.SetUserPreferences(ctx, "u1", first))

	got, err := store.UserPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// A second write replaces, not merges.
	second := map[string]any{"location": "Orchard"}
	require.NoError(t, store.SetUserPreferences(ctx, "u1", second))
	got, err = store.UserPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestUserIsolation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	conv, err := store.Create(ctx, "u1", "mine", "")
	require.NoError(t, err)

	_, err = store.Get(ctx, "u2", conv.ID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "u2", conv.ID), conversation.ErrNotFound)
	_, err = store.AddMessage(ctx, "u2", conv.ID, "user", "x")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.Get(ctx, "u1", "missing")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.ErrorIs(t, store.Rename(ctx, "u1", "missing", "t"), conversation.ErrNotFound)
	assert.ErrorIs(t, store.UpdatePreferences(ctx, "u1", "missing", nil), conversation.ErrNotFound)
}
