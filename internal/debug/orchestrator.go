package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	rtdebug "runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/Hanny658/Meta-Recommendation/internal/metarec"
	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

// RunService is the slice of the recommendation service the orchestrator
// drives: submitting requests and polling task progress.
type RunService interface {
	SubmitUserRequest(ctx context.Context, req metarec.SubmitRequest) (*metarec.SubmitResult, error)
	GetTaskStatus(ctx context.Context, taskID, userID, sessionID string) (*model.TaskStatus, bool)
}

// Runner executes behavior-test workflows as background jobs, one per
// run id, writing their progress into the trace store. Jobs carry a
// cancellation context so shutdown does not strand polling loops.
type Runner struct {
	store  *TraceStore
	svc    RunService
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(store *TraceStore, svc RunService, logger *slog.Logger) *Runner {
	return &Runner{
		store:  store,
		svc:    svc,
		logger: logger,
		jobs:   make(map[string]context.CancelFunc),
	}
}

// JobRunning reports whether a background job is still executing for
// the run. A run can be non-terminal with no job only after a restart.
func (r *Runner) JobRunning(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[runID]
	return ok
}

// Shutdown cancels all in-flight jobs and waits for them to record
// their final state, bounded by ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, cancel := range r.jobs {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("debug: job shutdown: %w", ctx.Err())
	}
}

// StartBehaviorCreate creates a queued run for the create-and-follow
// workflow and launches its background job. The returned record has
// status queued; callers poll for progress.
func (r *Runner) StartBehaviorCreate(req model.BehaviorCreateRequest) (*model.RunRecord, error) {
	req.Normalize()
	rec, err := r.store.CreateRun(model.RunKindBehaviorCreate, map[string]any{
		"query":            req.Query,
		"user_id":          req.UserID,
		"conversation_id":  req.ConversationID,
		"use_online_agent": req.UseOnlineAgent,
		"auto_confirm":     req.AutoConfirmEnabled(),
		"confirm_message":  req.ConfirmMessage,
		"max_wait_seconds": req.MaxWaitSeconds,
		"poll_interval_ms": req.PollIntervalMs,
	})
	if err != nil {
		return nil, err
	}
	r.launch(rec.ID, func(ctx context.Context) {
		r.runBehaviorCreate(ctx, rec.ID, req)
	})
	return rec, nil
}

// StartBehaviorTrack creates a queued run that follows an existing
// task. Callers are expected to preflight the task id's existence.
func (r *Runner) StartBehaviorTrack(req model.BehaviorTrackRequest) (*model.RunRecord, error) {
	req.Normalize()
	rec, err := r.store.CreateRun(model.RunKindBehaviorTrack, map[string]any{
		"task_id":          req.TaskID,
		"user_id":          req.UserID,
		"conversation_id":  req.ConversationID,
		"max_wait_seconds": req.MaxWaitSeconds,
		"poll_interval_ms": req.PollIntervalMs,
	})
	if err != nil {
		return nil, err
	}
	r.launch(rec.ID, func(ctx context.Context) {
		r.runBehaviorTrack(ctx, rec.ID, req)
	})
	return rec, nil
}

func (r *Runner) launch(runID string, job func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.jobs[runID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.jobs, runID)
			r.mu.Unlock()
		}()
		defer r.recoverJob(runID)
		job(ctx)
	}()
}

// recoverJob is the workflow catch-all: a panicking job is recorded on
// its trace and folded into a terminal error status, never dropped.
func (r *Runner) recoverJob(runID string) {
	p := recover()
	if p == nil {
		return
	}
	msg := fmt.Sprint(p)
	r.logger.Error("behavior test job panicked", "run_id", runID, "panic", msg)
	r.appendEvent(runID, model.RunEvent{
		Type:   "behavior_test",
		Label:  "Workflow failed",
		Status: model.EventStatusError,
		Data: map[string]any{
			"error":     msg,
			"traceback": string(rtdebug.Stack()),
		},
	})
	r.finish(runID, model.RunStatusError, msg)
}

// debugIdentity derives the user and session ids a run operates under,
// namespaced by the run id so behavior tests never touch real users. A
// caller-supplied conversation id becomes the session identity verbatim,
// so a test can target a session's pending confirmation state.
func debugIdentity(userID, conversationID, runID string) (string, string) {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	if userID == "" {
		userID = "debug_user"
	}
	if !strings.HasPrefix(userID, "debug_") {
		userID = fmt.Sprintf("debug_%s_%s", userID, short)
	}
	sessionID := conversationID
	if sessionID == "" {
		sessionID = "debug_session_" + short
	}
	return userID, sessionID
}

func (r *Runner) runBehaviorCreate(ctx context.Context, runID string, req model.BehaviorCreateRequest) {
	userID, sessionID := debugIdentity(req.UserID, req.ConversationID, runID)

	r.markRunning(runID)
	r.appendEvent(runID, model.RunEvent{
		Type:   "behavior_test",
		Label:  "Run started",
		Status: model.EventStatusInfo,
		Data: map[string]any{
			"query":            req.Query,
			"user_id":          userID,
			"session_id":       sessionID,
			"use_online_agent": req.UseOnlineAgent,
			"auto_confirm":     req.AutoConfirmEnabled(),
		},
	})

	result, err := r.timedSubmit(ctx, runID, "Submit user request", metarec.SubmitRequest{
		Query:          req.Query,
		UserID:         userID,
		SessionID:      sessionID,
		UseOnlineAgent: req.UseOnlineAgent,
	})
	if err != nil {
		r.finish(runID, model.RunStatusError, err.Error())
		return
	}
	r.store.RecordArtifact(runID, "initial_response", result)

	if result.Kind == metarec.ResultConfirmation && req.AutoConfirmEnabled() {
		history := []metarec.ChatTurn{
			{Role: "user", Content: req.Query},
			{Role: "assistant", Content: result.ConfirmationMessage()},
		}
		result, err = r.timedSubmit(ctx, runID, "Auto-confirm preferences", metarec.SubmitRequest{
			Query:          req.ConfirmMessage,
			UserID:         userID,
			History:        history,
			SessionID:      sessionID,
			UseOnlineAgent: req.UseOnlineAgent,
		})
		if err != nil {
			r.finish(runID, model.RunStatusError, err.Error())
			return
		}
		r.store.RecordArtifact(runID, "auto_confirm_response", result)
	}

	if result.Kind == metarec.ResultTaskCreated {
		// The artifact is recorded even when the task id is missing, so
		// the malformed response stays inspectable on the trace.
		r.store.RecordArtifact(runID, "task_created", map[string]any{"task_id": result.TaskID})
		if result.TaskID == "" {
			r.finish(runID, model.RunStatusError, "task_created response carried no task id")
			return
		}
		final := r.pollTask(ctx, runID, result.TaskID, userID, sessionID, req.MaxWaitSeconds, req.PollIntervalMs)
		r.finishFromTask(runID, final)
		return
	}

	r.store.RecordArtifact(runID, "behavior_test_result", result)
	r.finish(runID, model.RunStatusCompleted, "")
}

func (r *Runner) runBehaviorTrack(ctx context.Context, runID string, req model.BehaviorTrackRequest) {
	r.markRunning(runID)
	r.appendEvent(runID, model.RunEvent{
		Type:   "behavior_test",
		Label:  "Tracking existing task",
		Status: model.EventStatusInfo,
		Data:   map[string]any{"task_id": req.TaskID, "user_id": req.UserID},
	})

	final := r.pollTask(ctx, runID, req.TaskID, req.UserID, req.ConversationID, req.MaxWaitSeconds, req.PollIntervalMs)
	r.finishFromTask(runID, final)
}

func (r *Runner) timedSubmit(ctx context.Context, runID, label string, req metarec.SubmitRequest) (*metarec.SubmitResult, error) {
	start := time.Now()
	result, err := r.svc.SubmitUserRequest(ctx, req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		r.appendEvent(runID, model.RunEvent{
			Type:       "service_call",
			Label:      label,
			Status:     model.EventStatusError,
			DurationMs: &elapsed,
			Data:       map[string]any{"error": err.Error()},
		})
		return nil, err
	}
	// The full response rides in the event data (sanitized on append) so
	// the event log reads standalone without chasing artifacts.
	r.appendEvent(runID, model.RunEvent{
		Type:       "service_call",
		Label:      label,
		Status:     model.EventStatusCompleted,
		DurationMs: &elapsed,
		Data:       map[string]any{"result_type": string(result.Kind), "result": result},
	})
	return result, nil
}

// statusSignature is the polling change signature: a new task_status
// event is emitted only when one of these fields moves.
type statusSignature struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	Stage       string `json:"stage"`
	StageNumber int    `json:"stage_number"`
}

func signature(st *model.TaskStatus) string {
	raw, _ := json.Marshal(statusSignature{
		Status:      st.Status,
		Progress:    st.Progress,
		Message:     st.Message,
		Stage:       st.Stage,
		StageNumber: st.StageNumber,
	})
	return string(raw)
}

// pollTask follows a task until it is terminal, the deadline passes, or
// ctx is canceled. It always returns a status with a terminal or
// synthesized value; it never blocks past the deadline.
func (r *Runner) pollTask(ctx context.Context, runID, taskID, userID, sessionID string, maxWaitSeconds, pollIntervalMs int) *model.TaskStatus {
	if maxWaitSeconds < 1 {
		maxWaitSeconds = 1
	}
	interval := time.Duration(pollIntervalMs) * time.Millisecond
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	deadline := time.Now().Add(time.Duration(maxWaitSeconds) * time.Second)
	lastSignature := ""

	for time.Now().Before(deadline) {
		status, ok := r.svc.GetTaskStatus(ctx, taskID, userID, sessionID)
		if !ok {
			r.appendEvent(runID, model.RunEvent{
				Type:   "task_status",
				Label:  "Task not found",
				Status: model.EventStatusWarning,
				Data:   map[string]any{"task_id": taskID},
			})
		} else {
			if sig := signature(status); sig != lastSignature {
				lastSignature = sig
				r.appendEvent(runID, model.RunEvent{
					Type:   "task_status",
					Label:  fmt.Sprintf("Task %s", status.Status),
					Status: model.EventStatusInfo,
					Data:   status,
				})
			}
			if status.Terminal() {
				r.store.RecordArtifact(runID, "task_status_final", status)
				return status
			}
		}

		select {
		case <-ctx.Done():
			canceled := &model.TaskStatus{
				TaskID:  taskID,
				Status:  model.TaskStatusError,
				Message: "tracking canceled: server shutting down",
			}
			r.appendEvent(runID, model.RunEvent{
				Type:   "task_status",
				Label:  "Tracking canceled",
				Status: model.EventStatusError,
				Data:   canceled,
			})
			r.store.RecordArtifact(runID, "task_status_final", canceled)
			return canceled
		case <-time.After(interval):
		}
	}

	timedOut := &model.TaskStatus{
		TaskID:  taskID,
		Status:  model.TaskStatusTimeout,
		Message: fmt.Sprintf("Timed out after %ds", maxWaitSeconds),
	}
	r.appendEvent(runID, model.RunEvent{
		Type:   "task_status",
		Label:  "Polling timed out",
		Status: model.EventStatusError,
		Data:   timedOut,
	})
	r.store.RecordArtifact(runID, "task_status_final", timedOut)
	return timedOut
}

// finishFromTask maps a polling outcome onto the run's terminal status.
func (r *Runner) finishFromTask(runID string, final *model.TaskStatus) {
	switch final.Status {
	case model.TaskStatusCompleted:
		r.finish(runID, model.RunStatusCompleted, "")
	case model.TaskStatusTimeout:
		r.finish(runID, model.RunStatusTimeout, final.Message)
	default:
		msg := final.Error
		if msg == "" {
			msg = final.Message
		}
		if msg == "" {
			msg = "task ended in status " + final.Status
		}
		r.finish(runID, model.RunStatusError, msg)
	}
}

func (r *Runner) markRunning(runID string) {
	err := r.store.Mutate(runID, func(rec *model.RunRecord) {
		rec.Status = model.RunStatusRunning
	})
	if err != nil {
		r.logger.Error("run not marked running", "run_id", runID, "error", err)
	}
}

func (r *Runner) finish(runID string, status model.RunStatus, errMsg string) {
	err := r.store.Mutate(runID, func(rec *model.RunRecord) {
		if rec.Status.Terminal() {
			return
		}
		rec.Status = status
		if errMsg != "" {
			rec.Error = &errMsg
		}
	})
	if err != nil {
		r.logger.Error("run not finalized", "run_id", runID, "status", status, "error", err)
	}
}

func (r *Runner) appendEvent(runID string, ev model.RunEvent) {
	if err := r.store.AppendEvent(runID, ev); err != nil {
		r.logger.Warn("event not appended", "run_id", runID, "event", ev.Label, "error", err)
	}
}
