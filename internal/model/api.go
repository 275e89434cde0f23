package model

// Request and response shapes for the HTTP surface. Defaults mirror the
// values the debug UI relies on; Normalize fills them in after decode so
// handlers never see a half-empty request.

// ErrorDetail is the body of every error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail `json:"error"`
}

// Error codes used across the API.
const (
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
)

// DebugConfigResponse is returned by GET /internal/debug/config.
type DebugConfigResponse struct {
	Enabled           bool   `json:"enabled"`
	LLMExplainEnabled bool   `json:"llm_explain_enabled"`
	AuthMode          string `json:"auth_mode"`
	CookieName        string `json:"cookie_name"`
}

// DebugLoginRequest carries the admin token for POST /internal/debug/login.
type DebugLoginRequest struct {
	Token string `json:"token"`
}

// BehaviorCreateRequest starts a create-and-follow behavior test.
type BehaviorCreateRequest struct {
	Query          string `json:"query"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	UseOnlineAgent bool   `json:"use_online_agent"`
	AutoConfirm    *bool  `json:"auto_confirm,omitempty"`
	ConfirmMessage string `json:"confirm_message,omitempty"`
	MaxWaitSeconds int    `json:"max_wait_seconds,omitempty"`
	PollIntervalMs int    `json:"poll_interval_ms,omitempty"`
}

// Normalize applies request defaults in place.
func (r *BehaviorCreateRequest) Normalize() {
	if r.UserID == "" {
		r.UserID = "debug_user"
	}
	if r.AutoConfirm == nil {
		yes := true
		r.AutoConfirm = &yes
	}
	if r.ConfirmMessage == "" {
		r.ConfirmMessage = "Yes, that's correct"
	}
	if r.MaxWaitSeconds <= 0 {
		r.MaxWaitSeconds = 90
	}
	if r.PollIntervalMs <= 0 {
		r.PollIntervalMs = 500
	}
}

// AutoConfirmEnabled reports the resolved auto-confirm flag.
func (r *BehaviorCreateRequest) AutoConfirmEnabled() bool {
	return r.AutoConfirm == nil || *r.AutoConfirm
}

// BehaviorTrackRequest attaches a tracking run to an existing task.
type BehaviorTrackRequest struct {
	TaskID         string `json:"task_id"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MaxWaitSeconds int    `json:"max_wait_seconds,omitempty"`
	PollIntervalMs int    `json:"poll_interval_ms,omitempty"`
}

// Normalize applies request defaults in place.
func (r *BehaviorTrackRequest) Normalize() {
	if r.MaxWaitSeconds <= 0 {
		r.MaxWaitSeconds = 90
	}
	if r.PollIntervalMs <= 0 {
		r.PollIntervalMs = 500
	}
}

// ExplainRequest selects an explanation mode for a finished or in-flight run.
type ExplainRequest struct {
	Mode string `json:"mode,omitempty"`
}

// Input modes accepted by the unit harness.
const (
	InputModeManual = "manual"
	InputModeSample = "sample"
	InputModeSchema = "schema"
	InputModeLLM    = "llm"
)

// UnitRunRequest invokes one registered unit.
type UnitRunRequest struct {
	UnitName         string         `json:"unit_name"`
	InputData        map[string]any `json:"input_data,omitempty"`
	InputMode        string         `json:"input_mode,omitempty"`
	UseLLMGeneration bool           `json:"use_llm_generation,omitempty"`
}

// UnitGenerateRequest synthesizes an input for one registered unit.
type UnitGenerateRequest struct {
	UnitName string `json:"unit_name"`
	Mode     string `json:"mode,omitempty"`
}

// PlaygroundGenerateRequest synthesizes an input for an ad-hoc schema,
// independent of the unit registry. Method/path/summary are free-text
// hints forwarded to the LLM generator.
type PlaygroundGenerateRequest struct {
	Mode    string         `json:"mode,omitempty"`
	Schema  map[string]any `json:"schema"`
	Method  string         `json:"method,omitempty"`
	Path    string         `json:"path,omitempty"`
	Summary string         `json:"summary,omitempty"`
}
