package limit

import (
	"math"
	"sync"
	"time"
)

// Gradient2 is Gradient's sibling: instead of a MinimumMeasurement baseline
// it tracks a long-window exponential average of rtt (longRTT) as the
// baseline and compares it directly to each incoming (short) rtt sample. If
// the ratio longRTT/shortRTT exceeds 2 — a sign of rapid recovery from a
// recent overload episode — the baseline is nudged down 5% so the algorithm
// returns to steady state faster instead of anchoring to a stale high
// baseline.
type Gradient2 struct {
	notifier
	mu sync.Mutex

	minLimit      float64
	maxLimit      float64
	smoothing     float64
	tolerance     float64
	backoffRatio  float64
	queueSizeFunc func(int) int

	limit   float64
	longRTT *ExpAvgMeasurement
}

// Gradient2Option configures a Gradient2 limit at construction.
type Gradient2Option func(*Gradient2)

func WithGradient2Limits(minLimit, maxLimit int) Gradient2Option {
	return func(g *Gradient2) { g.minLimit, g.maxLimit = float64(minLimit), float64(maxLimit) }
}

func WithGradient2Smoothing(smoothing float64) Gradient2Option {
	return func(g *Gradient2) { g.smoothing = smoothing }
}

func WithGradient2Tolerance(tolerance float64) Gradient2Option {
	return func(g *Gradient2) { g.tolerance = tolerance }
}

func WithGradient2BackoffRatio(ratio float64) Gradient2Option {
	return func(g *Gradient2) { g.backoffRatio = ratio }
}

func WithGradient2QueueSizeFunc(f func(int) int) Gradient2Option {
	return func(g *Gradient2) { g.queueSizeFunc = f }
}

// WithGradient2LongWindow overrides the long-window EMA size (default 600).
// warmupSamples is accepted but not used: the warm-up phase always spans
// the first size samples.
func WithGradient2LongWindow(size uint, warmupSamples uint) Gradient2Option {
	return func(g *Gradient2) {
		g.longRTT = NewExpAvgMeasurement(size, 2.0)
		_ = warmupSamples // warm-up is implicit in ExpAvgMeasurement's own count<window phase
	}
}

// NewGradient2 returns a Gradient2 limit with the given initial limit and options.
func NewGradient2(initialLimit int, opts ...Gradient2Option) *Gradient2 {
	g := &Gradient2{
		minLimit:      1,
		maxLimit:      math.MaxInt32,
		smoothing:     0.2,
		tolerance:     1.0,
		backoffRatio:  0.9,
		queueSizeFunc: SqrtQueueFunction,
		limit:         float64(initialLimit),
		longRTT:       NewExpAvgMeasurement(600, 2.0),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gradient2) EstimatedLimit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(math.Round(g.limit))
}

func (g *Gradient2) OnSample(_ time.Time, rtt time.Duration, inFlight int, didDrop bool) {
	if rtt <= 0 {
		return
	}
	shortRTT := float64(rtt)

	g.mu.Lock()
	old := g.limit
	limitInt := int(math.Round(g.limit))
	queueSize := g.queueSizeFunc(limitInt)

	if float64(inFlight) < g.limit/2 {
		// App-limited: still let the baseline absorb the (likely low) latency.
		g.longRTT.Add(shortRTT)
		g.mu.Unlock()
		return
	}

	longRTT := g.longRTT.Add(shortRTT)

	var newLimit float64
	if didDrop {
		newLimit = g.limit * g.backoffRatio
	} else {
		gradient := clampFloat(g.tolerance*longRTT/shortRTT, 0.5, 1.0)
		newLimit = g.limit*gradient + float64(queueSize)
	}

	newLimit = (1-g.smoothing)*g.limit + g.smoothing*newLimit
	lowerBound := math.Max(g.minLimit, float64(queueSize))
	newLimit = clampFloat(newLimit, lowerBound, g.maxLimit)
	g.limit = newLimit

	// Rapid recovery: if the baseline is now far above recent latency, shrink
	// it 5% so a stale high baseline doesn't suppress growth for too long.
	if longRTT/shortRTT > 2 {
		g.longRTT.Update(func(v float64) float64 { return v * 0.95 })
	}

	updated := g.limit
	g.mu.Unlock()

	if int(math.Round(updated)) != int(math.Round(old)) {
		g.notify(int(math.Round(updated)))
	}
}
