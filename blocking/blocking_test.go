package blocking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netflix/concurrency-limits-go/limit"
	"github.com/Netflix/concurrency-limits-go/limiter"
)

func TestBlockingLimiterRejectsInsaneTimeout(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	_, err := NewBlockingLimiter(base, maxSaneTimeout+time.Second)
	assert.Error(t, err)
}

func TestBlockingLimiterWaitsForRelease(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	bl, err := NewBlockingLimiter(base, time.Second)
	require.NoError(t, err)

	held, ok := bl.Acquire(context.Background())
	require.True(t, ok)

	var blockedListener limiter.Listener
	var blockedOK bool
	done := make(chan struct{})
	go func() {
		blockedListener, blockedOK = bl.Acquire(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire should have blocked while the first is held")
	case <-time.After(30 * time.Millisecond):
	}

	held.OnSuccess()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire should have unblocked after release")
	}
	assert.True(t, blockedOK)
	blockedListener.OnSuccess()
}

func TestBlockingLimiterTimesOut(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	bl, err := NewBlockingLimiter(base, 30*time.Millisecond)
	require.NoError(t, err)

	held, ok := bl.Acquire(context.Background())
	require.True(t, ok)
	defer held.OnSuccess()

	start := time.Now()
	_, ok = bl.Acquire(context.Background())
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestBlockingLimiterHonorsContextCancellation(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	bl, err := NewBlockingLimiter(base, time.Minute)
	require.NoError(t, err)

	held, ok := bl.Acquire(context.Background())
	require.True(t, ok)
	defer held.OnSuccess()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, ok = bl.Acquire(ctx)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestDeadlineLimiterReturnsEmptyAfterDeadline(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	dl := NewDeadlineLimiter(base, time.Now().Add(50*time.Millisecond))

	held, ok := base.Acquire(context.Background())
	require.True(t, ok)
	defer held.OnSuccess()

	start := time.Now()
	_, ok = dl.Acquire(context.Background())
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestBlockingLimiterWakesAllWaiters(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	bl, err := NewBlockingLimiter(base, 150*time.Millisecond)
	require.NoError(t, err)

	held, ok := bl.Acquire(context.Background())
	require.True(t, ok)

	var wg sync.WaitGroup
	admitted := make(chan limiter.Listener, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l, ok := bl.Acquire(context.Background()); ok {
				admitted <- l
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	held.OnSuccess()
	wg.Wait()
	close(admitted)

	count := 0
	for l := range admitted {
		count++
		l.OnSuccess()
	}
	assert.Equal(t, 1, count, "limit=1, so exactly one of the three waiters should have been admitted")
}
