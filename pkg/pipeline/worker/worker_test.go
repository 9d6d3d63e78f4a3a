package worker_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/business-contact-pipeline/pkg/pipeline/worker"
)

func TestPool_RunsEveryJob(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []int64
	p := worker.New(func(_ context.Context, id int64) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, id)
		return nil
	}, worker.Options{Workers: 3, QueueSize: 8})
	p.Start(context.Background())

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, p.Submit(context.Background(), i))
	}
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	require.Len(t, seen, 20)
	assert.Equal(t, int64(1), seen[0])
	assert.Equal(t, int64(20), seen[19])
}

func TestPool_SingleWorkerKeepsOrder(t *testing.T) {
	t.Parallel()

	var seen []string
	p := worker.New(func(_ context.Context, s string) error {
		seen = append(seen, s)
		return nil
	}, worker.Options{Workers: 1, QueueSize: 4})
	p.Start(context.Background())
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, p.Submit(context.Background(), s))
	}
	p.Close()

	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestPool_ReportsErrorsAndPanics(t *testing.T) {
	t.Parallel()

	var failures atomic.Int32
	p := worker.New(func(_ context.Context, n int) error {
		switch n {
		case 1:
			return errors.New("boom")
		case 2:
			panic("kaboom")
		}
		return nil
	}, worker.Options{
		Workers:   1,
		QueueSize: 3,
		OnError: func(_ any, err error) {
			assert.Error(t, err)
			failures.Add(1)
		},
	})
	p.Start(context.Background())
	for n := 0; n < 3; n++ {
		require.NoError(t, p.Submit(context.Background(), n))
	}
	p.Close()

	assert.Equal(t, int32(2), failures.Load())
}

func TestPool_SubmitAfterClose(t *testing.T) {
	t.Parallel()

	p := worker.New(func(context.Context, int) error { return nil }, worker.Options{})
	p.Start(context.Background())
	p.Close()

	assert.ErrorIs(t, p.Submit(context.Background(), 1), worker.ErrClosed)
	assert.ErrorIs(t, p.TrySubmit(1), worker.ErrClosed)
	p.Close()
}

func TestPool_TrySubmitWhenFull(t *testing.T) {
	t.Parallel()

	p := worker.New(func(context.Context, int) error { return nil }, worker.Options{QueueSize: 1})
	require.NoError(t, p.TrySubmit(1))
	assert.ErrorIs(t, p.TrySubmit(2), worker.ErrQueueFull)

	p.Start(context.Background())
	p.Close()
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	t.Parallel()

	p := worker.New(func(context.Context, int) error { return nil }, worker.Options{QueueSize: 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Submit(ctx, 1), context.Canceled)
	p.Start(context.Background())
	p.Close()
}
