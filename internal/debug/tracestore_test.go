package debug

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

func newTestStore(t *testing.T) *TraceStore {
	t.Helper()
	store, err := NewTraceStore(t.TempDir(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return store
}

func TestTraceStoreLifecycle(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.CreateRun(model.RunKindBehaviorCreate, map[string]any{"query": "spicy food"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.RunStatusQueued, rec.Status)
	assert.Empty(t, rec.Events)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendEvent(rec.ID, model.RunEvent{
			Type: "behavior_test", Label: "step", Status: model.EventStatusInfo,
		}))
	}
	require.NoError(t, store.Mutate(rec.ID, func(r *model.RunRecord) {
		r.Status = model.RunStatusCompleted
	}))

	loaded, err := store.Load(rec.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Events, 3)
	assert.Equal(t, model.RunStatusCompleted, loaded.Status)
	assert.False(t, loaded.UpdatedAt.Before(loaded.CreatedAt))
	assert.False(t, loaded.Events[0].Timestamp.IsZero())
}

func TestTraceStoreUnknownRun(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = store.AppendEvent("missing", model.RunEvent{Type: "x", Label: "x"})
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = store.Mutate("missing", func(*model.RunRecord) {})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestTraceStoreCorruptedFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTraceStore(dir, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	_, err = store.Load("broken")
	assert.ErrorIs(t, err, ErrRunNotFound)

	// Corrupted files are skipped in listings, not surfaced as errors.
	rec, err := store.CreateRun(model.RunKindBehaviorTrack, nil)
	require.NoError(t, err)
	summaries, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, rec.ID, summaries[0].ID)
}

func TestTraceStoreListOrdering(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateRun(model.RunKindBehaviorCreate, nil)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := store.CreateRun(model.RunKindBehaviorCreate, nil)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	// Touching the first run moves it back to the top.
	require.NoError(t, store.AppendEvent(first.ID, model.RunEvent{Type: "x", Label: "x"}))

	summaries, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, first.ID, summaries[0].ID)
	assert.Equal(t, second.ID, summaries[1].ID)
	assert.Equal(t, 1, summaries[0].EventCount)
}

func TestTraceStoreSanitizesEventData(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.CreateRun(model.RunKindBehaviorCreate, nil)
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(rec.ID, model.RunEvent{
		Type: "service_call", Label: "call", Status: model.EventStatusInfo,
		Data: map[string]any{"api_key": "sk-12345", "query": "ok"},
	}))

	loaded, err := store.Load(rec.ID)
	require.NoError(t, err)
	data := loaded.Events[0].Data.(map[string]any)
	assert.Equal(t, "[REDACTED]", data["api_key"])
	assert.Equal(t, "ok", data["query"])
}

func TestTraceStoreArtifacts(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.CreateRun(model.RunKindBehaviorCreate, nil)
	require.NoError(t, err)

	store.RecordArtifact(rec.ID, "task_created", map[string]any{"task_id": "T1"})
	store.RecordArtifact(rec.ID, "task_created", map[string]any{"task_id": "T2"})
	store.RecordArtifact("missing", "ignored", 1) // best-effort, no panic

	loaded, err := store.Load(rec.ID)
	require.NoError(t, err)
	artifact := loaded.Artifacts["task_created"].(map[string]any)
	assert.Equal(t, "T2", artifact["task_id"])
}
