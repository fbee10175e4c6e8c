package limit

// MinimumMeasurement tracks a running minimum of a numeric series.
//
// This type is not concurrency safe; a Limit algorithm owns it under its own
// serialization lock.
type MinimumMeasurement struct {
	value float64
	set   bool
}

// Add folds s into the running minimum, replacing the current value with s
// if the measurement hasn't been set yet or s is smaller. It returns whether
// the value changed.
func (m *MinimumMeasurement) Add(s float64) bool {
	if !m.set || s < m.value {
		m.value = s
		m.set = true
		return true
	}
	return false
}

// Update unconditionally replaces the current value with f(current). This is
// used to "probe reset" a baseline measurement to a freshly observed sample
// rather than folding it in as a minimum.
func (m *MinimumMeasurement) Update(f func(float64) float64) {
	m.value = f(m.value)
	m.set = true
}

// Value returns the current minimum, or zero if nothing has been added.
func (m *MinimumMeasurement) Value() float64 {
	return m.value
}

// Reset clears the measurement back to its zero state.
func (m *MinimumMeasurement) Reset() {
	m.value = 0
	m.set = false
}

// ExpAvgMeasurement combines an adaptive warm-up average with a steady-state
// exponential moving average, low-pass filtered against upward spikes.
//
// For the first window samples, each contributes with weight 1/n (n being
// the sample count so far), matching a simple running average. After the
// window fills, each new sample contributes with a fixed weight 1/window, an
// EMA. In both phases the incoming sample is clamped to at most value*filter
// before being blended in, so that no single outlier can raise the average by
// more than a factor of filter in one step; downward movement is never
// clamped, so a sustained drop in load pulls the average down quickly.
//
// This type is not concurrency safe.
type ExpAvgMeasurement struct {
	window uint
	filter float64

	count uint
	value float64
}

// NewExpAvgMeasurement returns a measurement with the given warm-up window
// size and spike filter factor. filter must be >= 1 for the clamp to only
// suppress upward spikes.
func NewExpAvgMeasurement(window uint, filter float64) *ExpAvgMeasurement {
	return &ExpAvgMeasurement{window: window, filter: filter}
}

// Add folds sample into the measurement and returns the updated value.
func (m *ExpAvgMeasurement) Add(sample float64) float64 {
	if m.count == 0 {
		m.value = sample
		m.count = 1
		return m.value
	}

	var weight float64
	if m.count < m.window {
		m.count++
		weight = 1 / float64(m.count)
	} else {
		weight = 1 / float64(m.window)
	}

	clamped := sample
	if capped := m.value * m.filter; capped < clamped {
		clamped = capped
	}
	m.value = (1-weight)*m.value + weight*clamped
	return m.value
}

// Value returns the current measurement value.
func (m *ExpAvgMeasurement) Value() float64 {
	return m.value
}

// Update unconditionally replaces the current value with f(current), without
// folding it through the warm-up/EMA weighting. Gradient2 uses this to shrink
// a stale longRTT baseline directly when recovering from an overload episode.
func (m *ExpAvgMeasurement) Update(f func(float64) float64) {
	m.value = f(m.value)
}

// Reset clears the measurement, requiring a fresh warm-up.
func (m *ExpAvgMeasurement) Reset() {
	m.count = 0
	m.value = 0
}
