package debug

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/metarec"
	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

// stubService scripts the submission and task-status sequences a
// workflow will observe. A nil status entry means "task not found".
type stubService struct {
	mu          sync.Mutex
	submits     []metarec.SubmitRequest
	results     []*metarec.SubmitResult
	statuses    []*model.TaskStatus
	statusCalls int
}

func (s *stubService) SubmitUserRequest(ctx context.Context, req metarec.SubmitRequest) (*metarec.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, req)
	res := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return res, nil
}

func (s *stubService) GetTaskStatus(ctx context.Context, taskID, userID, sessionID string) (*model.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.statusCalls
	s.statusCalls++
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	st := s.statuses[idx]
	if st == nil {
		return nil, false
	}
	snapshot := *st
	return &snapshot, true
}

func (s *stubService) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

func waitTerminal(t *testing.T, store *TraceStore, runID string) *model.RunRecord {
	t.Helper()
	var rec *model.RunRecord
	require.Eventually(t, func() bool {
		var err error
		rec, err = store.Load(runID)
		return err == nil && rec.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
	return rec
}

func eventsOfType(rec *model.RunRecord, typ string) []model.RunEvent {
	var out []model.RunEvent
	for _, ev := range rec.Events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestPollingDeduplicatesStatusEvents(t *testing.T) {
	store := newTestStore(t)
	processing := &model.TaskStatus{TaskID: "T1", Status: model.TaskStatusProcessing, Progress: 20, Stage: "searching"}
	svc := &stubService{statuses: []*model.TaskStatus{processing, processing,
		{TaskID: "T1", Status: model.TaskStatusCompleted, Progress: 100}}}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	rec, err := runner.StartBehaviorTrack(model.BehaviorTrackRequest{TaskID: "T1", PollIntervalMs: 100})
	require.NoError(t, err)

	final := waitTerminal(t, store, rec.ID)
	assert.Equal(t, model.RunStatusCompleted, final.Status)
	assert.Equal(t, 3, svc.calls())

	// The identical second poll is deduplicated.
	statusEvents := eventsOfType(final, "task_status")
	require.Len(t, statusEvents, 2)

	artifact := final.Artifacts["task_status_final"].(map[string]any)
	assert.Equal(t, "completed", artifact["status"])
}

func TestPollingTimesOut(t *testing.T) {
	store := newTestStore(t)
	svc := &stubService{statuses: []*model.TaskStatus{
		{TaskID: "T1", Status: model.TaskStatusProcessing, Progress: 10},
	}}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	start := time.Now()
	rec, err := runner.StartBehaviorTrack(model.BehaviorTrackRequest{
		TaskID: "T1", MaxWaitSeconds: 1, PollIntervalMs: 100,
	})
	require.NoError(t, err)

	final := waitTerminal(t, store, rec.ID)
	assert.WithinDuration(t, start.Add(time.Second), time.Now(), 1500*time.Millisecond)
	assert.Equal(t, model.RunStatusTimeout, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "Timed out after 1s", *final.Error)

	artifact := final.Artifacts["task_status_final"].(map[string]any)
	assert.Equal(t, "timeout", artifact["status"])
}

func TestPollingTaskNotFoundKeepsGoing(t *testing.T) {
	store := newTestStore(t)
	svc := &stubService{statuses: []*model.TaskStatus{
		nil,
		{TaskID: "T1", Status: model.TaskStatusCompleted, Progress: 100},
	}}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	rec, err := runner.StartBehaviorTrack(model.BehaviorTrackRequest{TaskID: "T1", PollIntervalMs: 100})
	require.NoError(t, err)

	final := waitTerminal(t, store, rec.ID)
	assert.Equal(t, model.RunStatusCompleted, final.Status)

	warnings := 0
	for _, ev := range final.Events {
		if ev.Status == model.EventStatusWarning {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestCreateAndFollowWithAutoConfirm(t *testing.T) {
	store := newTestStore(t)
	svc := &stubService{
		results: []*metarec.SubmitResult{
			{Kind: metarec.ResultConfirmation, Confirmation: &metarec.ConfirmationRequest{Message: "Confirm?"}},
			{Kind: metarec.ResultTaskCreated, TaskID: "T1"},
		},
		statuses: []*model.TaskStatus{
			{TaskID: "T1", Status: model.TaskStatusCompleted, Progress: 100},
		},
	}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	rec, err := runner.StartBehaviorCreate(model.BehaviorCreateRequest{
		Query: "spicy sichuan in Chinatown", PollIntervalMs: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, rec.Status)

	final := waitTerminal(t, store, rec.ID)
	assert.Equal(t, model.RunStatusCompleted, final.Status)

	for _, key := range []string{"initial_response", "auto_confirm_response", "task_created", "task_status_final"} {
		assert.Contains(t, final.Artifacts, key)
	}

	// The resubmission carries the two-turn history and confirm phrase.
	require.Len(t, svc.submits, 2)
	confirm := svc.submits[1]
	assert.Equal(t, "Yes, that's correct", confirm.Query)
	require.Len(t, confirm.History, 2)
	assert.Equal(t, "user", confirm.History[0].Role)
	assert.Equal(t, "spicy sichuan in Chinatown", confirm.History[0].Content)
	assert.Equal(t, "Confirm?", confirm.History[1].Content)

	// Both calls ran under a derived debug identity.
	assert.Contains(t, svc.submits[0].UserID, "debug_")
	assert.Contains(t, svc.submits[0].SessionID, "debug_session_")

	// Each completed service_call event embeds the full response, so the
	// event log reads standalone.
	serviceCalls := eventsOfType(final, "service_call")
	require.Len(t, serviceCalls, 2)
	for _, ev := range serviceCalls {
		if ev.Status != model.EventStatusCompleted {
			continue
		}
		require.Contains(t, ev.Data, "result")
		require.Contains(t, ev.Data, "result_type")
	}
}

func TestCreateUsesConversationIDAsSession(t *testing.T) {
	store := newTestStore(t)
	svc := &stubService{
		results: []*metarec.SubmitResult{{Kind: metarec.ResultLLMReply, Reply: "hello"}},
	}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	rec, err := runner.StartBehaviorCreate(model.BehaviorCreateRequest{
		Query: "hi", ConversationID: "conv-42",
	})
	require.NoError(t, err)
	waitTerminal(t, store, rec.ID)

	require.Len(t, svc.submits, 1)
	assert.Equal(t, "conv-42", svc.submits[0].SessionID)
}

func TestCreateWithoutTaskCompletesDirectly(t *testing.T) {
	store := newTestStore(t)
	svc := &stubService{
		results: []*metarec.SubmitResult{{Kind: metarec.ResultLLMReply, Reply: "hello"}},
	}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	rec, err := runner.StartBehaviorCreate(model.BehaviorCreateRequest{Query: "hi"})
	require.NoError(t, err)

	final := waitTerminal(t, store, rec.ID)
	assert.Equal(t, model.RunStatusCompleted, final.Status)
	assert.Contains(t, final.Artifacts, "initial_response")
	assert.Contains(t, final.Artifacts, "behavior_test_result")
	assert.NotContains(t, final.Artifacts, "task_created")
	assert.Equal(t, 0, svc.calls())
}

func TestTaskCreatedWithoutIDFailsRun(t *testing.T) {
	store := newTestStore(t)
	svc := &stubService{
		results: []*metarec.SubmitResult{{Kind: metarec.ResultTaskCreated}},
	}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	rec, err := runner.StartBehaviorCreate(model.BehaviorCreateRequest{Query: "hi"})
	require.NoError(t, err)

	final := waitTerminal(t, store, rec.ID)
	assert.Equal(t, model.RunStatusError, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "task id")

	// Even a malformed task_created response leaves its artifact behind.
	require.Contains(t, final.Artifacts, "task_created")
	artifact := final.Artifacts["task_created"].(map[string]any)
	assert.Equal(t, "", artifact["task_id"])
}

// A hard crash leaves a run in running status with no job to finish it.
// Documented limitation: a fresh Runner reports job_running=false but the
// record stays running; nothing reconciles it.
func TestRunningRecordSurvivesRestartUnreconciled(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.CreateRun(model.RunKindBehaviorCreate, nil)
	require.NoError(t, err)
	require.NoError(t, store.Mutate(rec.ID, func(r *model.RunRecord) {
		r.Status = model.RunStatusRunning
	}))

	runner := NewRunner(store, &stubService{}, slog.New(slog.DiscardHandler))
	assert.False(t, runner.JobRunning(rec.ID))

	loaded, err := store.Load(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, loaded.Status)
	assert.False(t, loaded.Status.Terminal())
}

func TestShutdownCancelsPolling(t *testing.T) {
	store := newTestStore(t)
	svc := &stubService{statuses: []*model.TaskStatus{
		{TaskID: "T1", Status: model.TaskStatusProcessing, Progress: 10},
	}}
	runner := NewRunner(store, svc, slog.New(slog.DiscardHandler))

	rec, err := runner.StartBehaviorTrack(model.BehaviorTrackRequest{
		TaskID: "T1", MaxWaitSeconds: 60, PollIntervalMs: 100,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.calls() > 0 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(ctx))

	final, err := store.Load(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusError, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "canceled")
	assert.False(t, runner.JobRunning(rec.ID))
}
