package debug

import (
	"context"
	"fmt"
	rtdebug "runtime/debug"
	"time"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
	"github.com/Hanny658/Meta-Recommendation/internal/sanitize"
)

// Handler executes one registered unit against already-validated input.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// Registry maps unit names to their specs and handlers. Registration
// happens once at startup; after that the registry is read-only, so
// lookups take no lock.
type Registry struct {
	order    []string
	specs    map[string]model.UnitSpec
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]model.UnitSpec),
		handlers: make(map[string]Handler),
	}
}

// Register adds a unit. Registering a duplicate name panics: unit names
// are compile-time constants and a collision is a programming error.
func (r *Registry) Register(spec model.UnitSpec, h Handler) {
	if _, exists := r.specs[spec.Name]; exists {
		panic(fmt.Sprintf("debug: duplicate unit %q", spec.Name))
	}
	r.order = append(r.order, spec.Name)
	r.specs[spec.Name] = spec
	r.handlers[spec.Name] = h
}

// Specs lists all unit specs in registration order.
func (r *Registry) Specs() []model.UnitSpec {
	out := make([]model.UnitSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Spec returns one unit spec by name.
func (r *Registry) Spec(name string) (model.UnitSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Run invokes a unit and always returns a result: handler errors and
// panics are captured into the payload, never propagated. Output is
// sanitized so unit results are safe to display and persist.
func (r *Registry) Run(ctx context.Context, name string, input map[string]any) (res model.UnitResult) {
	h, ok := r.handlers[name]
	if !ok {
		return model.UnitResult{OK: false, Error: fmt.Sprintf("unknown unit %q", name)}
	}

	start := time.Now()
	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
		if p := recover(); p != nil {
			res = model.UnitResult{
				OK:         false,
				DurationMs: time.Since(start).Milliseconds(),
				Error:      fmt.Sprint(p),
				Traceback:  string(rtdebug.Stack()),
			}
		}
	}()

	out, err := h(ctx, input)
	if err != nil {
		return model.UnitResult{OK: false, Error: err.Error()}
	}
	return model.UnitResult{OK: true, Output: sanitize.Value(out)}
}
