package debug

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

func TestExplainPersistsExplanation(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.CreateRun(model.RunKindBehaviorCreate, map[string]any{"query": "spicy"})
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(rec.ID, model.RunEvent{
		Type: "behavior_test", Label: "Run started", Status: model.EventStatusInfo,
	}))

	llm := &stubCompleter{text: "The run submitted a query and finished cleanly."}
	explainer := NewExplainer(store, llm, slog.New(slog.DiscardHandler))

	expl, err := explainer.Explain(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, llm.text, expl.Content)
	assert.False(t, expl.GeneratedAt.IsZero())

	// The trace itself is embedded in the prompt.
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], rec.ID)

	loaded, err := store.Load(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Explanation)
	assert.Equal(t, llm.text, loaded.Explanation.Content)

	events := eventsOfType(loaded, "llm_explain")
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusCompleted, events[0].Status)
}

func TestExplainWithoutClient(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.CreateRun(model.RunKindBehaviorCreate, nil)
	require.NoError(t, err)

	explainer := NewExplainer(store, nil, slog.New(slog.DiscardHandler))
	_, err = explainer.Explain(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrExplainUnavailable)

	// The failure is recorded on the trace, not swallowed.
	loaded, err := store.Load(rec.ID)
	require.NoError(t, err)
	events := eventsOfType(loaded, "llm_explain")
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusError, events[0].Status)
}

func TestExplainUnknownRun(t *testing.T) {
	store := newTestStore(t)
	explainer := NewExplainer(store, &stubCompleter{text: "x"}, slog.New(slog.DiscardHandler))

	_, err := explainer.Explain(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
