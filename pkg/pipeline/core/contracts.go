package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable reports that a strategy could not produce a result for its input.
//
// Strategies wrap it (fmt.Errorf("...: %w", ErrUnavailable)) so a Chain can move
// on to the next strategy. Any other error stops the chain.
var ErrUnavailable = errors.New("unavailable")

// Strategy produces an output for one input, or reports ErrUnavailable.
type Strategy[In any, Out any] interface {
	Name() string
	Run(ctx context.Context, in In) (Out, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc[In any, Out any] struct {
	Label string
	Fn    func(ctx context.Context, in In) (Out, error)
}

func (s StrategyFunc[In, Out]) Name() string { return s.Label }

func (s StrategyFunc[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	return s.Fn(ctx, in)
}

// Unavailable wraps ErrUnavailable with a reason.
func Unavailable(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnavailable)
}

// IsUnavailable reports whether err carries ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Attempt records one strategy invocation made by a Chain.
type Attempt struct {
	Strategy string
	Err      error
}

// Chain runs strategies in order and returns the first result that is not
// unavailable.
type Chain[In any, Out any] struct {
	strategies []Strategy[In, Out]
}

// NewChain builds a chain. Nil strategies are skipped.
func NewChain[In any, Out any](strategies ...Strategy[In, Out]) *Chain[In, Out] {
	c := &Chain[In, Out]{}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	return c
}

// Len returns the number of strategies in the chain.
func (c *Chain[In, Out]) Len() int {
	return len(c.strategies)
}

// Run returns the output of the first available strategy together with its
// name and the attempts made. When every strategy is unavailable the returned
// error wraps ErrUnavailable. A non-unavailable error stops the chain and is
// returned as-is.
func (c *Chain[In, Out]) Run(ctx context.Context, in In) (Out, string, []Attempt, error) {
	var zero Out
	attempts := make([]Attempt, 0, len(c.strategies))
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", attempts, err
		}
		out, err := s.Run(ctx, in)
		attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err})
		if err == nil {
			return out, s.Name(), attempts, nil
		}
		if !IsUnavailable(err) {
			return zero, s.Name(), attempts, err
		}
	}
	return zero, "", attempts, Unavailable("all %d strategies", len(c.strategies))
}

// TransientError marks an error as retryable by retry and worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
