package metarec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

// taskStage is one step of the staged recommendation pipeline.
type taskStage struct {
	name     string
	progress int
	message  string
}

var pipelineStages = []taskStage{
	{"analyzing_preferences", 20, "Analyzing your dining preferences"},
	{"searching_candidates", 50, "Searching candidate restaurants"},
	{"ranking_recommendations", 80, "Ranking recommendations"},
}

// TaskManager runs recommendation tasks in the background and serves
// progress snapshots to pollers. State is in-memory only; a restart loses
// in-flight tasks, matching the upstream engine's behavior.
type TaskManager struct {
	logger     *slog.Logger
	stageDelay time.Duration

	// Pipelines outlive the request that created them; they stop only
	// when the manager itself is stopped.
	lifetime context.Context
	stop     context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*taskEntry
}

type taskEntry struct {
	status    model.TaskStatus
	userID    string
	sessionID string
}

// NewTaskManager creates a task manager. stageDelay controls how long each
// pipeline stage takes; zero selects the production default.
func NewTaskManager(logger *slog.Logger, stageDelay time.Duration) *TaskManager {
	if stageDelay <= 0 {
		stageDelay = 2 * time.Second
	}
	lifetime, stop := context.WithCancel(context.Background())
	return &TaskManager{
		logger:     logger,
		stageDelay: stageDelay,
		lifetime:   lifetime,
		stop:       stop,
		tasks:      make(map[string]*taskEntry),
	}
}

// Stop aborts all in-flight pipelines. Pollers see them end in error.
func (m *TaskManager) Stop() {
	m.stop()
}

// Create registers a new task and starts its pipeline in the background.
// The returned id is immediately pollable.
func (m *TaskManager) Create(userID, sessionID, query string, prefs map[string]any) string {
	taskID := uuid.New().String()

	m.mu.Lock()
	m.tasks[taskID] = &taskEntry{
		userID:    userID,
		sessionID: sessionID,
		status: model.TaskStatus{
			TaskID:   taskID,
			Status:   model.TaskStatusProcessing,
			Progress: 0,
			Message:  "Task queued",
		},
	}
	m.mu.Unlock()

	go m.runPipeline(m.lifetime, taskID, query, prefs)
	return taskID
}

// Status returns the current snapshot for a task. When userID is given the
// task must belong to that user; sessionID narrows further when set.
func (m *TaskManager) Status(taskID, userID, sessionID string) (*model.TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tasks[taskID]
	if !ok {
		return nil, false
	}
	if userID != "" && entry.userID != userID {
		return nil, false
	}
	if userID != "" && sessionID != "" && entry.sessionID != sessionID {
		return nil, false
	}
	snapshot := entry.status
	return &snapshot, true
}

func (m *TaskManager) setStatus(taskID string, mutate func(*model.TaskStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.tasks[taskID]; ok {
		mutate(&entry.status)
	}
}

func (m *TaskManager) runPipeline(ctx context.Context, taskID, query string, prefs map[string]any) {
	for i, stage := range pipelineStages {
		select {
		case <-ctx.Done():
			m.setStatus(taskID, func(s *model.TaskStatus) {
				s.Status = model.TaskStatusError
				s.Error = "task canceled: server shutting down"
				s.Message = "Canceled"
			})
			return
		case <-time.After(m.stageDelay):
		}
		m.setStatus(taskID, func(s *model.TaskStatus) {
			s.Status = model.TaskStatusProcessing
			s.Stage = stage.name
			s.StageNumber = i + 1
			s.Progress = stage.progress
			s.Message = stage.message
		})
	}

	result := buildRecommendations(query, prefs)
	m.setStatus(taskID, func(s *model.TaskStatus) {
		s.Status = model.TaskStatusCompleted
		s.Progress = 100
		s.Message = "Recommendations ready"
		s.Result = result
	})
	m.logger.Info("recommendation task completed", "task_id", taskID)
}

// buildRecommendations produces the offline fallback recommendation set.
// The online agent path replaces this with real search executions.
func buildRecommendations(query string, prefs map[string]any) map[string]any {
	location, _ := prefs["location"].(string)
	if location == "" {
		location = "Singapore"
	}
	cuisine := "Local"
	if list, ok := prefs["cuisine_preferences"].([]string); ok && len(list) > 0 {
		cuisine = list[0]
	} else if list, ok := prefs["cuisine_preferences"].([]any); ok && len(list) > 0 {
		if s, ok := list[0].(string); ok {
			cuisine = s
		}
	}

	recommendations := make([]map[string]any, 0, 3)
	for i := 1; i <= 3; i++ {
		recommendations = append(recommendations, map[string]any{
			"name":    fmt.Sprintf("%s Pick %d in %s", cuisine, i, location),
			"area":    location,
			"cuisine": cuisine,
			"why":     "Matches your stated preferences",
		})
	}
	return map[string]any{
		"query":           query,
		"preferences":     prefs,
		"recommendations": recommendations,
	}
}
