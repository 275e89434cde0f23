// Package metarec implements the restaurant-recommendation service: intent
// analysis, preference extraction, the confirmation flow, and background
// recommendation tasks. The debug console drives it through the same
// entry points the public API uses.
package metarec

// ResultKind discriminates the outcome of a submitted user request.
type ResultKind string

const (
	ResultLLMReply      ResultKind = "llm_reply"
	ResultTaskCreated   ResultKind = "task_created"
	ResultConfirmation  ResultKind = "confirmation"
	ResultModifyRequest ResultKind = "modify_request"
)

// ConfirmationRequest asks the user to confirm extracted preferences
// before a recommendation task is started.
type ConfirmationRequest struct {
	Message     string         `json:"message"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// SubmitResult is the normalized outcome of SubmitUserRequest. Exactly the
// fields relevant to Kind are populated; callers switch on Kind instead of
// probing for optional fields.
type SubmitResult struct {
	Kind         ResultKind           `json:"type"`
	Reply        string               `json:"llm_reply,omitempty"`
	TaskID       string               `json:"task_id,omitempty"`
	Confirmation *ConfirmationRequest `json:"confirmation_request,omitempty"`
	Message      string               `json:"message,omitempty"`
}

// ConfirmationMessage returns the confirmation prompt, or "" for other kinds.
func (r *SubmitResult) ConfirmationMessage() string {
	if r == nil || r.Confirmation == nil {
		return ""
	}
	return r.Confirmation.Message
}

// ChatTurn is one prior turn supplied as conversation history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SubmitRequest carries one user query into the recommendation pipeline.
type SubmitRequest struct {
	Query          string
	UserID         string
	History        []ChatTurn
	SessionID      string
	UseOnlineAgent bool
}
