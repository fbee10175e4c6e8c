package limit

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// VegasStrategies bundles the per-state transition functions Vegas uses to
// translate a queue-size estimate into a limit change. Supplying these as
// function values (rather than hard-coded constants) lets callers tune the
// algorithm's aggressiveness without forking it.
type VegasStrategies struct {
	Alpha     func(limit int) int
	Beta      func(limit int) int
	Threshold func(limit int) int
	Increase  func(limit int) int
	Decrease  func(limit int) int
}

// DefaultVegasStrategies returns the teacher-equivalent defaults:
// alpha=3+log10(L), beta=6+log10(L), threshold=log10(L), increase=L+log10(L),
// decrease=L-log10(L).
func DefaultVegasStrategies() VegasStrategies {
	return VegasStrategies{
		Alpha:     Log10RootFunction(3),
		Beta:      Log10RootFunction(6),
		Threshold: Log10RootFunction(0),
		Increase: func(limit int) int {
			return limit + int(math.Log10(float64(limit)))
		},
		Decrease: func(limit int) int {
			return limit - int(math.Log10(float64(limit)))
		},
	}
}

// Vegas is a delay-based Limit, modeled on TCP Vegas: it estimates queueing
// by comparing the observed rtt to a learned no-load baseline rttNoLoad, and
// nudges the limit up or down to keep the implied queue size within
// [alpha, beta].
type Vegas struct {
	notifier
	mu sync.Mutex

	strategies      VegasStrategies
	minLimit        int
	maxLimit        int
	smoothing       float64
	probeMultiplier int

	limit         float64
	rttNoLoad     float64 // nanoseconds; 0 means unset
	samplesSinceProbe int
	nextProbeAt   int
}

// VegasOption configures a Vegas limit at construction.
type VegasOption func(*Vegas)

// WithVegasStrategies overrides the default alpha/beta/threshold/increase/decrease functions.
func WithVegasStrategies(s VegasStrategies) VegasOption {
	return func(v *Vegas) { v.strategies = s }
}

// WithVegasLimits overrides the [min, max] the limit is clamped to.
func WithVegasLimits(minLimit, maxLimit int) VegasOption {
	return func(v *Vegas) { v.minLimit, v.maxLimit = minLimit, maxLimit }
}

// WithVegasSmoothing overrides the EMA weight (in [0,1]) applied to each limit update.
func WithVegasSmoothing(smoothing float64) VegasOption {
	return func(v *Vegas) { v.smoothing = smoothing }
}

// WithVegasProbeMultiplier overrides how many samples (on average) elapse between baseline probes.
func WithVegasProbeMultiplier(multiplier int) VegasOption {
	return func(v *Vegas) { v.probeMultiplier = multiplier }
}

// NewVegas returns a Vegas limit with the given initial limit and options.
func NewVegas(initialLimit int, opts ...VegasOption) *Vegas {
	v := &Vegas{
		strategies:      DefaultVegasStrategies(),
		minLimit:        1,
		maxLimit:        math.MaxInt32,
		smoothing:       1.0,
		probeMultiplier: 30,
		limit:           float64(initialLimit),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.scheduleNextProbe()
	return v
}

// scheduleNextProbe picks how many more samples must be seen before the next
// baseline probe, roughly probeMultiplier*limit with jitter (spec.md §4.4).
func (v *Vegas) scheduleNextProbe() {
	base := v.probeMultiplier * int(math.Round(v.limit))
	if base < 1 {
		base = 1
	}
	jitter := rand.Intn(base/2 + 1)
	v.nextProbeAt = v.samplesSinceProbe + base + jitter
}

func (v *Vegas) EstimatedLimit() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return int(math.Round(v.limit))
}

func (v *Vegas) OnSample(_ time.Time, rtt time.Duration, inFlight int, didDrop bool) {
	if rtt <= 0 {
		return
	}
	rttNanos := float64(rtt)

	v.mu.Lock()
	old := v.limit
	v.samplesSinceProbe++

	if v.samplesSinceProbe >= v.nextProbeAt {
		v.rttNoLoad = rttNanos
		v.samplesSinceProbe = 0
		v.scheduleNextProbe()
		v.mu.Unlock()
		return
	}

	if v.rttNoLoad == 0 || rttNanos < v.rttNoLoad {
		v.rttNoLoad = rttNanos
		v.mu.Unlock()
		return
	}

	limitInt := int(math.Round(v.limit))
	queueSize := int(math.Ceil(v.limit * (1 - v.rttNoLoad/rttNanos)))
	newLimit := v.limit

	switch {
	case didDrop:
		newLimit = float64(v.strategies.Decrease(limitInt))
	case inFlight*2 < limitInt:
		// App-limited: we haven't tested enough concurrency to learn anything.
		v.mu.Unlock()
		return
	case queueSize <= v.strategies.Threshold(limitInt):
		newLimit = v.limit + float64(v.strategies.Beta(limitInt))
	case queueSize < v.strategies.Alpha(limitInt):
		newLimit = float64(v.strategies.Increase(limitInt))
	case queueSize > v.strategies.Beta(limitInt):
		newLimit = float64(v.strategies.Decrease(limitInt))
	}

	newLimit = clampFloat(newLimit, float64(v.minLimit), float64(v.maxLimit))
	v.limit = (1-v.smoothing)*v.limit + v.smoothing*newLimit
	updated := v.limit
	v.mu.Unlock()

	if int(math.Round(updated)) != int(math.Round(old)) {
		v.notify(int(math.Round(updated)))
	}
}
