package model

// UnitSpec describes one named internal operation exposed for ad-hoc
// debugging. Specs are registered once at startup and immutable after.
// The invocation handler is held by the registry, not the spec, so the
// spec serializes cleanly.
type UnitSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	FunctionName string         `json:"function_name"`
	InputSchema  map[string]any `json:"input_schema"`
	ExpectedIO   map[string]any `json:"expected_io"`
	SampleInput  map[string]any `json:"sample_input"`
}

// UnitResult is the outcome of one timed unit invocation. Failures are
// carried in the payload; invoking a unit never raises to the caller.
type UnitResult struct {
	OK         bool   `json:"ok"`
	DurationMs int64  `json:"duration_ms"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	Traceback  string `json:"traceback,omitempty"`
}
