package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
	"github.com/Hanny658/Meta-Recommendation/internal/schema"
)

// Completer is the outbound LLM contract used for input generation and
// trace explanation.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64, jsonMode bool) (string, error)
}

// InputGenerator synthesizes unit inputs from sample data, schemas, or
// an LLM. A nil llm disables the LLM mode; callers fall back to the
// deterministic generator.
type InputGenerator struct {
	llm    Completer
	logger *slog.Logger
}

// NewInputGenerator creates a generator. llm may be nil.
func NewInputGenerator(llm Completer, logger *slog.Logger) *InputGenerator {
	return &InputGenerator{llm: llm, logger: logger}
}

// ResolveInput produces the input map for a unit invocation and reports
// which source actually supplied it. Manual mode uses the provided data
// as-is, but absent data or a use_llm_generation flag regenerates instead
// of invoking the unit with an empty payload; sample mode copies the
// registered sample; llm mode asks the model and falls back to schema
// generation on any failure; everything else derives a minimal valid
// input from the schema.
func (g *InputGenerator) ResolveInput(ctx context.Context, spec model.UnitSpec, req model.UnitRunRequest) (map[string]any, string) {
	switch req.InputMode {
	case model.InputModeSample:
		return sampleInput(spec), model.InputModeSample
	case model.InputModeLLM:
		if input, ok := g.fromLLM(ctx, spec.InputSchema, unitHint(spec)); ok {
			return input, model.InputModeLLM
		}
		return schemaInput(spec.InputSchema), model.InputModeSchema
	case model.InputModeManual:
		if req.InputData != nil && !req.UseLLMGeneration {
			return req.InputData, model.InputModeManual
		}
	}
	if req.UseLLMGeneration {
		if input, ok := g.fromLLM(ctx, spec.InputSchema, unitHint(spec)); ok {
			return input, model.InputModeLLM
		}
	}
	return schemaInput(spec.InputSchema), model.InputModeSchema
}

// GenerateForUnit synthesizes an input for one unit without running it.
func (g *InputGenerator) GenerateForUnit(ctx context.Context, spec model.UnitSpec, mode string) map[string]any {
	switch mode {
	case model.InputModeSample:
		return sampleInput(spec)
	case model.InputModeLLM:
		if input, ok := g.fromLLM(ctx, spec.InputSchema, unitHint(spec)); ok {
			return input
		}
	}
	return schemaInput(spec.InputSchema)
}

// GenerateForPlayground synthesizes an input for an ad-hoc request
// schema, using free-text endpoint hints when the LLM is in play.
func (g *InputGenerator) GenerateForPlayground(ctx context.Context, req model.PlaygroundGenerateRequest) map[string]any {
	if req.Mode == model.InputModeLLM {
		hint := strings.TrimSpace(fmt.Sprintf("%s %s %s", req.Method, req.Path, req.Summary))
		if input, ok := g.fromLLM(ctx, req.Schema, hint); ok {
			return input
		}
	}
	return schemaInput(req.Schema)
}

func (g *InputGenerator) fromLLM(ctx context.Context, s map[string]any, hint string) (map[string]any, bool) {
	if g.llm == nil || s == nil {
		return nil, false
	}

	schemaJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, false
	}

	prompt := fmt.Sprintf(
		"Generate one realistic JSON object of test input for a restaurant "+
			"recommendation backend.\nTarget: %s\nJSON schema:\n%s\n"+
			"Respond with only the JSON object, no commentary.",
		hint, schemaJSON)

	text, err := g.llm.Complete(ctx, prompt, 0.7, true)
	if err != nil {
		g.logger.Warn("llm input generation failed", "error", err)
		return nil, false
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &input); err != nil {
		g.logger.Warn("llm input generation returned non-object", "error", err)
		return nil, false
	}
	return input, true
}

func unitHint(spec model.UnitSpec) string {
	if spec.Description != "" {
		return spec.Name + ": " + spec.Description
	}
	return spec.Name
}

func sampleInput(spec model.UnitSpec) map[string]any {
	if spec.SampleInput == nil {
		return schemaInput(spec.InputSchema)
	}
	// Copy so callers cannot mutate the registered sample.
	out := make(map[string]any, len(spec.SampleInput))
	for k, v := range spec.SampleInput {
		out[k] = v
	}
	return out
}

func schemaInput(s map[string]any) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	if generated, ok := schema.Generate(s).(map[string]any); ok {
		return generated
	}
	return map[string]any{}
}
