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

func noTimeout(context.Context) time.Duration { return 0 }

func TestLifoBlockingLimiterFastPath(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(2)).Build()
	lifo := NewLifoBlockingLimiter(base, 5, noTimeout)

	l, ok := lifo.Acquire(context.Background())
	require.True(t, ok)
	l.OnSuccess()
}

func TestLifoBlockingLimiterBacklogFullRejects(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	lifo := NewLifoBlockingLimiter(base, 1, func(context.Context) time.Duration { return time.Second })

	held, ok := lifo.Acquire(context.Background())
	require.True(t, ok)
	defer held.OnSuccess()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lifo.Acquire(context.Background()) // fills the one backlog slot
	}()
	time.Sleep(20 * time.Millisecond)

	_, ok = lifo.Acquire(context.Background())
	assert.False(t, ok, "backlog is already full, this caller should be rejected immediately")

	wg.Wait()
}

// TestLifoBlockingLimiterServesNewestFirst reproduces the LIFO ordering
// scenario: limit=1, one holder, five queued waiters entered in order
// 1..5 spaced 10ms apart, then the held permit released once; each served
// waiter's own release serves the next. Completion order must be 5,4,3,2,1
// (last in, first served).
func TestLifoBlockingLimiterServesNewestFirst(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	lifo := NewLifoBlockingLimiter(base, 10, func(context.Context) time.Duration { return 2 * time.Second })

	held, ok := lifo.Acquire(context.Background())
	require.True(t, ok)

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l, ok := lifo.Acquire(context.Background())
			if !ok {
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			l.OnSuccess()
		}(i)
		time.Sleep(10 * time.Millisecond)
	}

	// Give the fifth goroutine time to enqueue behind the first four before
	// the release cascade starts.
	time.Sleep(10 * time.Millisecond)

	// Each queued waiter's own completion re-serves the next front waiter
	// (onCompletion runs from inside OnSuccess), so releasing the held
	// permit once cascades through all five in LIFO order.
	held.OnSuccess()

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{5, 4, 3, 2, 1}, order)
}

func TestLifoBlockingLimiterTimeoutRemovesFromTail(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	lifo := NewLifoBlockingLimiter(base, 5, func(context.Context) time.Duration { return 30 * time.Millisecond })

	held, ok := lifo.Acquire(context.Background())
	require.True(t, ok)
	defer held.OnSuccess()

	start := time.Now()
	_, ok = lifo.Acquire(context.Background())
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)

	// Backlog slot must have been freed by the timeout, not leaked.
	lifo.mu.Lock()
	used := lifo.backlogUsed
	lifo.mu.Unlock()
	assert.Equal(t, 0, used)
}

func TestLifoBlockingLimiterInterruptRemovesFromHead(t *testing.T) {
	base := limiter.NewBuilder().WithLimit(limit.NewFixed(1)).Build()
	lifo := NewLifoBlockingLimiter(base, 5, func(context.Context) time.Duration { return time.Minute })

	held, ok := lifo.Acquire(context.Background())
	require.True(t, ok)
	defer held.OnSuccess()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, ok = lifo.Acquire(ctx)
	assert.False(t, ok)

	lifo.mu.Lock()
	used := lifo.backlogUsed
	lifo.mu.Unlock()
	assert.Equal(t, 0, used)
}
