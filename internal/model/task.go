package model

// Task states reported by the recommendation task manager.
// "timeout" is never reported by the manager itself; the debug poller
// synthesizes it when a task outlives the polling deadline.
const (
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusError      = "error"
	TaskStatusTimeout    = "timeout"
)

// TaskStatus is one snapshot of a recommendation task's progress.
type TaskStatus struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	Stage       string `json:"stage,omitempty"`
	StageNumber int    `json:"stage_number,omitempty"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Terminal reports whether the task will make no further progress.
func (t TaskStatus) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusError
}
