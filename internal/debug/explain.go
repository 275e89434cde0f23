package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
	"github.com/Hanny658/Meta-Recommendation/internal/sanitize"
)

// ErrExplainUnavailable is returned when no LLM client is configured.
var ErrExplainUnavailable = errors.New("debug: llm explanation unavailable")

const explainPromptBudget = 120_000

// Explainer produces LLM-written walkthroughs of run traces and
// persists them on the run record.
type Explainer struct {
	store  *TraceStore
	llm    Completer // nil = explanation disabled
	logger *slog.Logger
}

// NewExplainer creates an Explainer. llm may be nil.
func NewExplainer(store *TraceStore, llm Completer, logger *slog.Logger) *Explainer {
	return &Explainer{store: store, llm: llm, logger: logger}
}

// Explain generates and persists an explanation for a run. A failure is
// recorded on the trace as an error-status llm_explain event and
// returned to the caller; it is never silently swallowed.
func (e *Explainer) Explain(ctx context.Context, runID string) (*model.Explanation, error) {
	expl, err := e.explain(ctx, runID)
	if err != nil {
		if appendErr := e.store.AppendEvent(runID, model.RunEvent{
			Type:   "llm_explain",
			Label:  "Explanation failed",
			Status: model.EventStatusError,
			Data:   map[string]any{"error": err.Error()},
		}); appendErr != nil {
			e.logger.Warn("explain failure not recorded", "run_id", runID, "error", appendErr)
		}
		return nil, err
	}
	return expl, nil
}

func (e *Explainer) explain(ctx context.Context, runID string) (*model.Explanation, error) {
	rec, err := e.store.Load(runID)
	if err != nil {
		return nil, err
	}
	if e.llm == nil {
		return nil, ErrExplainUnavailable
	}

	raw, err := json.MarshalIndent(sanitize.Value(rec), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("debug: encode trace for explanation: %w", err)
	}
	trace := string(raw)
	if len(trace) > explainPromptBudget {
		trace = trace[:explainPromptBudget]
	}

	prompt := "You are reviewing a recorded debug run of a restaurant-recommendation " +
		"backend. Explain in plain language what happened: the request, each step " +
		"taken, any errors, and the final outcome. Be concrete about timings and " +
		"status transitions.\n\nTrace:\n" + trace

	start := time.Now()
	content, err := e.llm.Complete(ctx, prompt, 0.2, false)
	if err != nil {
		return nil, fmt.Errorf("debug: explain run %s: %w", runID, err)
	}

	expl := &model.Explanation{
		GeneratedAt: time.Now().UTC(),
		DurationMs:  time.Since(start).Milliseconds(),
		Content:     content,
	}

	if err := e.store.Mutate(runID, func(rec *model.RunRecord) {
		rec.Explanation = expl
	}); err != nil {
		return nil, err
	}
	if err := e.store.AppendEvent(runID, model.RunEvent{
		Type:       "llm_explain",
		Label:      "Explanation generated",
		Status:     model.EventStatusCompleted,
		DurationMs: &expl.DurationMs,
		Data:       map[string]any{"content_chars": len(content)},
	}); err != nil {
		return nil, err
	}
	return expl, nil
}
