package limit

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Gradient is a gradient-based Limit: it compares the observed rtt to a
// learned no-load baseline and scales the limit by the ratio, clamped to
// [0.5, 1.0], plus a small positive queue-size head-room so the limit can
// keep probing upward while latency stays flat.
type Gradient struct {
	notifier
	mu sync.Mutex

	minLimit      float64
	maxLimit      float64
	smoothing     float64
	tolerance     float64
	backoffRatio  float64
	queueSizeFunc func(int) int
	probeInterval int

	limit             float64
	rttNoLoad         MinimumMeasurement
	samplesSinceProbe int
	nextProbeAt       int
}

// GradientOption configures a Gradient limit at construction.
type GradientOption func(*Gradient)

func WithGradientLimits(minLimit, maxLimit int) GradientOption {
	return func(g *Gradient) { g.minLimit, g.maxLimit = float64(minLimit), float64(maxLimit) }
}

func WithGradientSmoothing(smoothing float64) GradientOption {
	return func(g *Gradient) { g.smoothing = smoothing }
}

func WithGradientTolerance(tolerance float64) GradientOption {
	return func(g *Gradient) { g.tolerance = tolerance }
}

func WithGradientBackoffRatio(ratio float64) GradientOption {
	return func(g *Gradient) { g.backoffRatio = ratio }
}

func WithGradientQueueSizeFunc(f func(int) int) GradientOption {
	return func(g *Gradient) { g.queueSizeFunc = f }
}

func WithGradientProbeInterval(samples int) GradientOption {
	return func(g *Gradient) { g.probeInterval = samples }
}

// NewGradient returns a Gradient limit with the given initial limit and options.
func NewGradient(initialLimit int, opts ...GradientOption) *Gradient {
	g := &Gradient{
		minLimit:      1,
		maxLimit:      math.MaxInt32,
		smoothing:     0.2,
		tolerance:     1.0,
		backoffRatio:  0.9,
		queueSizeFunc: SqrtQueueFunction,
		probeInterval: 1000,
		limit:         float64(initialLimit),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.scheduleNextProbe()
	return g
}

func (g *Gradient) scheduleNextProbe() {
	g.nextProbeAt = g.samplesSinceProbe + g.probeInterval + rand.Intn(g.probeInterval)
}

func (g *Gradient) EstimatedLimit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(math.Round(g.limit))
}

func (g *Gradient) OnSample(_ time.Time, rtt time.Duration, inFlight int, didDrop bool) {
	if rtt <= 0 {
		return
	}
	rttNanos := float64(rtt)

	g.mu.Lock()
	old := g.limit
	g.samplesSinceProbe++
	limitInt := int(math.Round(g.limit))
	queueSize := g.queueSizeFunc(limitInt)

	if g.samplesSinceProbe >= g.nextProbeAt {
		forced := math.Max(g.minLimit, float64(queueSize))
		g.limit = forced
		g.rttNoLoad.Update(func(float64) float64 { return rttNanos })
		g.samplesSinceProbe = 0
		g.scheduleNextProbe()
		updated := g.limit
		g.mu.Unlock()
		if int(math.Round(updated)) != int(math.Round(old)) {
			g.notify(int(math.Round(updated)))
		}
		return
	}

	g.rttNoLoad.Add(rttNanos)

	var newLimit float64
	switch {
	case didDrop:
		newLimit = g.limit * g.backoffRatio
	case float64(inFlight) < g.limit/2:
		// App-limited: not enough concurrency in flight to trust the signal.
		g.mu.Unlock()
		return
	default:
		gradient := clampFloat(g.tolerance*g.rttNoLoad.Value()/rttNanos, 0.5, 1.0)
		newLimit = g.limit*gradient + float64(queueSize)
	}

	if newLimit < g.limit {
		newLimit = math.Max(g.minLimit, (1-g.smoothing)*g.limit+g.smoothing*newLimit)
	}
	lowerBound := math.Max(g.minLimit, float64(queueSize))
	newLimit = clampFloat(newLimit, lowerBound, g.maxLimit)

	g.limit = newLimit
	updated := g.limit
	g.mu.Unlock()

	if int(math.Round(updated)) != int(math.Round(old)) {
		g.notify(int(math.Round(updated)))
	}
}
