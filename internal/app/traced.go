package app

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/ai"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/retry"
)

// tracedCompleter logs every completion attempt. It sits under the retry
// wrapper so each retry shows up with its attempt number.
type tracedCompleter struct {
	next       ai.Completer
	logger     *zap.Logger
	provider   string
	maxRetries int

	mu       sync.Mutex
	attempts map[uint64]*attemptState
}

type attemptState struct {
	n int
	// stop cancels the cleanup armed for a retry that may never come.
	stop func() bool
}

func newTracedCompleter(next ai.Completer, logger *zap.Logger, provider string, maxRetries int) *tracedCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tracedCompleter{
		next:       next,
		logger:     logger.Named("ai"),
		provider:   provider,
		maxRetries: maxRetries,
		attempts:   make(map[uint64]*attemptState),
	}
}

func (t *tracedCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	key := promptKey(req.Prompt)
	attempt := t.nextAttempt(key)

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Debug("completion request",
		zap.String("provider", t.provider),
		zap.Uint64("prompt", key),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Int("attempt", attempt),
		zap.String("deadline_in", deadlineIn),
	)

	start := time.Now()
	out, err := t.next.Complete(ctx, req)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		retryable := retry.IsTransient(err)
		willRetry := retryable && attempt <= t.maxRetries && ctx.Err() == nil
		if willRetry {
			// The retry loop gives up silently when ctx ends during backoff.
			t.arm(key, context.AfterFunc(ctx, func() { t.forget(key) }))
		} else {
			t.forget(key)
		}
		t.logger.Warn("completion failed",
			zap.String("provider", t.provider),
			zap.Uint64("prompt", key),
			zap.Int("attempt", attempt),
			zap.Duration("duration", elapsed),
			zap.Bool("retryable", retryable),
			zap.Bool("will_retry", willRetry),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return out, err
	}

	t.forget(key)
	t.logger.Debug("completion response",
		zap.String("provider", t.provider),
		zap.Uint64("prompt", key),
		zap.Int("attempt", attempt),
		zap.Duration("duration", elapsed),
		zap.Int("answer_chars", len(out)),
	)
	return out, nil
}

func (t *tracedCompleter) nextAttempt(key uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.attempts[key]
	if !ok {
		st = &attemptState{}
		t.attempts[key] = st
	}
	if st.stop != nil {
		st.stop()
		st.stop = nil
	}
	st.n++
	return st.n
}

func (t *tracedCompleter) arm(key uint64, stop func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.attempts[key]
	if !ok {
		stop()
		return
	}
	if st.stop != nil {
		st.stop()
	}
	st.stop = stop
}

func (t *tracedCompleter) forget(key uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.attempts[key]; ok && st.stop != nil {
		st.stop()
	}
	delete(t.attempts, key)
}

func promptKey(prompt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	return h.Sum64()
}
