package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Exclusive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	l, err := m.Acquire(ctx, SearchKey(1), time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, SearchKey(1), time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	other, err := m.Acquire(ctx, SearchKey(2), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx))

	again, err := m.Acquire(ctx, SearchKey(1), time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, l.Token, again.Token)
}

func TestMemory_Expires(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// Releasing the expired lease must not drop the new owner's lease.
	require.NoError(t, stale.Release(ctx))
	_, err = m.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrHeld)
	require.NoError(t, fresh.Release(ctx))
}

func TestMemory_OneWinnerUnderContention(t *testing.T) {
	m := NewMemory()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(context.Background(), SearchKey(9), time.Minute); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSearchKey(t *testing.T) {
	assert.Equal(t, "leadscraper:search:42:lease", SearchKey(42))
}

func TestConnect(t *testing.T) {
	c, err := Connect(context.Background(), "redis://:secret@localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	require.NoError(t, c.Close())

	c, err = Connect(context.Background(), "cache:6379")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", c.Options().Addr)
	require.NoError(t, c.Close())

	_, err = Connect(context.Background(), "redis://host:notaport/x")
	assert.Error(t, err)
}
