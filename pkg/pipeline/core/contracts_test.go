package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/business-contact-pipeline/pkg/pipeline/core"
)

func strategy(name string, out int, err error, calls *[]string) core.Strategy[string, int] {
	return core.StrategyFunc[string, int]{
		Label: name,
		Fn: func(_ context.Context, _ string) (int, error) {
			*calls = append(*calls, name)
			return out, err
		},
	}
}

func TestChain_StopsAtFirstAvailable(t *testing.T) {
	var calls []string
	chain := core.NewChain(
		strategy("primary", 0, core.Unavailable("no key"), &calls),
		strategy("fallback", 7, nil, &calls),
		strategy("never", 9, nil, &calls),
	)

	out, name, attempts, err := chain.Run(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, "fallback", name)
	assert.Equal(t, []string{"primary", "fallback"}, calls)
	require.Len(t, attempts, 2)
	assert.True(t, core.IsUnavailable(attempts[0].Err))
}

func TestChain_AllUnavailable(t *testing.T) {
	var calls []string
	chain := core.NewChain(
		strategy("a", 0, core.Unavailable("a"), &calls),
		strategy("b", 0, core.Unavailable("b"), &calls),
	)

	_, name, _, err := chain.Run(context.Background(), "in")
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
	assert.Empty(t, name)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestChain_HardErrorStops(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	chain := core.NewChain(
		strategy("a", 0, boom, &calls),
		strategy("b", 1, nil, &calls),
	)

	_, name, _, err := chain.Run(context.Background(), "in")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "a", name)
	assert.Equal(t, []string{"a"}, calls)
}

func TestChain_SkipsNilStrategies(t *testing.T) {
	var calls []string
	chain := core.NewChain[string, int](nil, strategy("only", 3, nil, &calls))
	assert.Equal(t, 1, chain.Len())
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("rate limited")
	err := error(&core.TransientError{Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "rate limited", err.Error())

	var nilErr *core.TransientError
	assert.Equal(t, "transient error", nilErr.Error())
}
