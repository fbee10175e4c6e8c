package limit

import (
	"sync"
	"time"

	"github.com/Netflix/concurrency-limits-go/metrics"
)

const (
	// DefaultMinWindowTime and DefaultMaxWindowTime bound how long a window
	// accumulates samples before it is forced to drain, regardless of count.
	DefaultMinWindowTime = time.Second
	DefaultMaxWindowTime = time.Second

	// DefaultWindowSize is the sample count that, once reached after
	// DefaultMinWindowTime has elapsed, also triggers a drain.
	DefaultWindowSize = 10

	// DefaultMinRTTThreshold discards windows whose tracked rtt is
	// implausibly small (clock noise, in-process short-circuits) rather than
	// let them pull the baseline down artificially.
	DefaultMinRTTThreshold = 100 * time.Microsecond
)

// WindowedLimit wraps a Limit with time- and count-based gating: samples
// accumulate into a Window, and only when the window is "full" — both
// DefaultMinWindowTime has elapsed and DefaultWindowSize samples have been
// seen, or DefaultMaxWindowTime has elapsed regardless of count — is the
// window drained into a single representative sample forwarded to the
// wrapped Limit.
//
// The minRttThreshold gate is applied to the window's TrackedRTT at drain
// time, not to each raw sample: a window that happens to finish with an
// implausibly low tracked rtt (e.g. every request in it was served from an
// in-process cache) is dropped rather than forwarded, since folding it in
// would pull the limit's rtt baseline down in a way that doesn't reflect the
// downstream dependency's real no-load latency.
type WindowedLimit struct {
	delegate Limit

	windowSize      int
	minWindowTime   time.Duration
	maxWindowTime   time.Duration
	minRTTThreshold time.Duration
	newWindow       func() Window
	registry        metrics.MetricRegistry
	tags            []metrics.Tag

	mu          sync.Mutex
	window      Window
	windowStart time.Time
}

// WindowedLimitOption configures a WindowedLimit at construction.
type WindowedLimitOption func(*WindowedLimit)

func WithWindowSize(n int) WindowedLimitOption {
	return func(w *WindowedLimit) { w.windowSize = n }
}

func WithMinWindowTime(d time.Duration) WindowedLimitOption {
	return func(w *WindowedLimit) { w.minWindowTime = d }
}

func WithMaxWindowTime(d time.Duration) WindowedLimitOption {
	return func(w *WindowedLimit) { w.maxWindowTime = d }
}

func WithMinRTTThreshold(d time.Duration) WindowedLimitOption {
	return func(w *WindowedLimit) { w.minRTTThreshold = d }
}

// WithWindowFactory overrides how a fresh Window is created at the start of
// each accumulation period; the default is NewAverageWindow.
func WithWindowFactory(f func() Window) WindowedLimitOption {
	return func(w *WindowedLimit) { w.newWindow = f }
}

// WithMetricRegistry reports each drained window's minimum rtt and implied
// queue size (its maximum observed in-flight count) as distributions,
// tagged with the given tags. These are recorded at drain time regardless
// of the minRttThreshold gate, so operators can see raw window behavior
// even for windows the gate suppresses from feeding the algorithm.
func WithMetricRegistry(r metrics.MetricRegistry, tags ...metrics.Tag) WindowedLimitOption {
	return func(w *WindowedLimit) {
		w.registry = r
		w.tags = tags
	}
}

// NewWindowedLimit wraps delegate with the default gating parameters, which
// may be overridden via options.
func NewWindowedLimit(delegate Limit, opts ...WindowedLimitOption) *WindowedLimit {
	w := &WindowedLimit{
		delegate:        delegate,
		windowSize:      DefaultWindowSize,
		minWindowTime:   DefaultMinWindowTime,
		maxWindowTime:   DefaultMaxWindowTime,
		minRTTThreshold: DefaultMinRTTThreshold,
		newWindow:       func() Window { return NewAverageWindow() },
		registry:        metrics.NoopRegistry{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.window = w.newWindow()
	w.windowStart = time.Time{}
	return w
}

func (w *WindowedLimit) EstimatedLimit() int {
	return w.delegate.EstimatedLimit()
}

func (w *WindowedLimit) Subscribe(listener func(int)) {
	w.delegate.Subscribe(listener)
}

// OnSample appends the sample unconditionally and, if the window is now due
// to drain, hands a single representative observation to the wrapped Limit.
func (w *WindowedLimit) OnSample(startTime time.Time, rtt time.Duration, inFlight int, didDrop bool) {
	w.mu.Lock()
	if w.windowStart.IsZero() {
		w.windowStart = startTime
	}

	if didDrop {
		w.window = w.window.AddDropped(inFlight)
	} else {
		w.window = w.window.AddSample(rtt, inFlight)
	}

	elapsed := startTime.Sub(w.windowStart)
	full := elapsed >= w.maxWindowTime ||
		(elapsed >= w.minWindowTime && w.window.SampleCount() >= w.windowSize)
	if !full {
		w.mu.Unlock()
		return
	}

	drained := w.window
	w.window = w.newWindow()
	w.windowStart = time.Time{}
	w.mu.Unlock()

	if drained.SampleCount() == 0 {
		return
	}

	w.registry.Distribution(metrics.IDWindowMinRTT, w.tags...).AddSample(float64(drained.MinRTT()))
	w.registry.Distribution(metrics.IDWindowQueueSize, w.tags...).AddSample(float64(drained.MaxInFlight()))

	trackedRTT := drained.TrackedRTT()
	if trackedRTT < w.minRTTThreshold {
		return
	}
	w.delegate.OnSample(startTime, trackedRTT, drained.MaxInFlight(), drained.DidDrop())
}
