package debug

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

func TestRegistryRun(t *testing.T) {
	r := NewRegistry()
	r.Register(model.UnitSpec{Name: "echo"}, func(ctx context.Context, input map[string]any) (any, error) {
		return input["value"], nil
	})

	res := r.Run(context.Background(), "echo", map[string]any{"value": "hi"})
	assert.True(t, res.OK)
	assert.Equal(t, "hi", res.Output)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestRegistryRunSanitizesOutput(t *testing.T) {
	r := NewRegistry()
	r.Register(model.UnitSpec{Name: "leaky"}, func(ctx context.Context, input map[string]any) (any, error) {
		return map[string]any{"password": "hunter2", "name": "ok"}, nil
	})

	res := r.Run(context.Background(), "leaky", nil)
	require.True(t, res.OK)
	out := res.Output.(map[string]any)
	assert.Equal(t, "[REDACTED]", out["password"])
	assert.Equal(t, "ok", out["name"])
}

func TestRegistryRunCapturesError(t *testing.T) {
	r := NewRegistry()
	r.Register(model.UnitSpec{Name: "failing"}, func(ctx context.Context, input map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	res := r.Run(context.Background(), "failing", nil)
	assert.False(t, res.OK)
	assert.Equal(t, "boom", res.Error)
}

func TestRegistryRunNeverPropagatesPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(model.UnitSpec{Name: "panicking"}, func(ctx context.Context, input map[string]any) (any, error) {
		panic("kaboom")
	})

	var res model.UnitResult
	require.NotPanics(t, func() {
		res = r.Run(context.Background(), "panicking", nil)
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "kaboom")
	assert.NotEmpty(t, res.Traceback)
}

func TestRegistryRunUnknownUnit(t *testing.T) {
	r := NewRegistry()
	res := r.Run(context.Background(), "ghost", nil)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "ghost")
}

func TestRegistrySpecsOrderAndLookup(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, input map[string]any) (any, error) { return nil, nil }
	r.Register(model.UnitSpec{Name: "b"}, noop)
	r.Register(model.UnitSpec{Name: "a"}, noop)

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "b", specs[0].Name)
	assert.Equal(t, "a", specs[1].Name)

	_, ok := r.Spec("a")
	assert.True(t, ok)
	_, ok = r.Spec("z")
	assert.False(t, ok)

	assert.Panics(t, func() { r.Register(model.UnitSpec{Name: "a"}, noop) })
}
