package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/business-contact-pipeline/pkg/pipeline/core"
)

func fastOptions(maxRetries int) Options {
	return Options{
		MaxRetries:        maxRetries,
		BackoffInitial:    time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
		BackoffJitterFrac: 0,
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	out, err := Do(context.Background(), New(fastOptions(3)), func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", &core.TransientError{Err: errors.New("try again")}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), New(fastOptions(10)), func(context.Context) (string, error) {
		calls++
		return "", errors.New("permanent")
	})
	require.EqualError(t, err, "permanent")
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), New(fastOptions(2)), func(context.Context) (int, error) {
		calls++
		return 0, &core.TransientError{Err: errors.New("503")}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_AppliesRequestTimeout(t *testing.T) {
	t.Parallel()

	opts := fastOptions(0)
	opts.RequestTimeout = 5 * time.Millisecond
	_, err := Do(context.Background(), New(opts), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_StopsOnParentCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, New(fastOptions(5)), func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&core.TransientError{Err: errors.New("x")}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("bad request")))
}

func TestBackoffSleep_CapsAtMax(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, backoffSleep(10*time.Millisecond, 50*time.Millisecond, 0, 0))
	assert.Equal(t, 40*time.Millisecond, backoffSleep(10*time.Millisecond, 50*time.Millisecond, 0, 2))
	assert.Equal(t, 50*time.Millisecond, backoffSleep(10*time.Millisecond, 50*time.Millisecond, 0, 6))
}
