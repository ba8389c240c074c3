package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedex/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(window time.Duration) (*Limiter, *clock) {
	markers := store.NewMemoryStore(window)
	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	markers.SetClock(c.Now)
	return New(markers), c
}

func TestCheckAndMarkFirstPermitted(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(time.Minute)

	require.NoError(t, l.CheckAndMark(ctx, "user@example.org"))
	assert.ErrorIs(t, l.CheckAndMark(ctx, "user@example.org"), ErrLimited)
}

func TestCheckAndMarkIndependentIdentities(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(time.Minute)

	require.NoError(t, l.CheckAndMark(ctx, "a"))
	require.NoError(t, l.CheckAndMark(ctx, "b"))
	assert.ErrorIs(t, l.CheckAndMark(ctx, "a"), ErrLimited)
}

func TestCheckAndMarkWindowExpires(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLimiter(time.Minute)

	require.NoError(t, l.CheckAndMark(ctx, "x"))
	assert.ErrorIs(t, l.CheckAndMark(ctx, "x"), ErrLimited)

	c.Advance(61 * time.Second)
	assert.NoError(t, l.CheckAndMark(ctx, "x"), "permitted again after the cooldown lapses")
}

func TestCheckAndMarkExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(time.Minute)

	const n = 64
	results := make(chan error, n)
	var start, wg sync.WaitGroup
	start.Add(1)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			results <- l.CheckAndMark(ctx, "x")
		}()
	}
	start.Done()
	wg.Wait()
	close(results)

	permitted, limited := 0, 0
	for err := range results {
		switch {
		case err == nil:
			permitted++
		case errors.Is(err, ErrLimited):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, permitted, "exactly one caller may proceed per window")
	assert.Equal(t, n-1, limited)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, store.ErrUpstream
}

func (failingStore) Put(context.Context, string, []byte) (string, error) {
	return "", store.ErrUpstream
}

func (failingStore) Delete(context.Context, string) error {
	return store.ErrUpstream
}

func TestCheckAndMarkPropagatesStoreFailure(t *testing.T) {
	l := New(failingStore{})

	err := l.CheckAndMark(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUpstream)
	assert.NotErrorIs(t, err, ErrLimited, "storage failure must be distinguishable from cooldown")
}
