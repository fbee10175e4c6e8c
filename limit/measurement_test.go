package limit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinimumMeasurement(t *testing.T) {
	var m MinimumMeasurement
	assert.Equal(t, float64(0), m.Value())

	changed := m.Add(10)
	assert.True(t, changed)
	assert.Equal(t, float64(10), m.Value())

	changed = m.Add(20)
	assert.False(t, changed)
	assert.Equal(t, float64(10), m.Value())

	changed = m.Add(5)
	assert.True(t, changed)
	assert.Equal(t, float64(5), m.Value())
}

func TestMinimumMeasurementUpdate(t *testing.T) {
	var m MinimumMeasurement
	m.Add(10)
	m.Update(func(v float64) float64 { return v * 2 })
	assert.Equal(t, float64(20), m.Value())
}

func TestMinimumMeasurementReset(t *testing.T) {
	var m MinimumMeasurement
	m.Add(10)
	m.Reset()
	assert.Equal(t, float64(0), m.Value())
	assert.True(t, m.Add(100))
}

func TestExpAvgMeasurementWarmup(t *testing.T) {
	m := NewExpAvgMeasurement(10, 2.0)

	assert.Equal(t, float64(100), m.Add(100))
	// second sample: weight 1/2
	assert.InDelta(t, 150, m.Add(200), 0.001)
	// third sample: weight 1/3
	assert.InDelta(t, float64(150)*2/3+300/3, m.Add(300), 0.001)
}

func TestExpAvgMeasurementSteadyState(t *testing.T) {
	m := NewExpAvgMeasurement(2, 10.0)
	m.Add(10)
	m.Add(10)
	// window full at count==2; next samples use weight 1/window
	v := m.Add(10)
	assert.InDelta(t, 10, v, 0.001)
}

func TestExpAvgMeasurementSpikeClamp(t *testing.T) {
	m := NewExpAvgMeasurement(10, 1.5)
	m.Add(10)
	// A huge spike should be clamped to value*filter=15 before blending.
	v := m.Add(1000)
	assert.Less(t, v, float64(20))
}

func TestExpAvgMeasurementDownwardNotClamped(t *testing.T) {
	m := NewExpAvgMeasurement(10, 1.1)
	m.Add(100)
	v := m.Add(1)
	assert.Less(t, v, float64(100))
}

func TestExpAvgMeasurementUpdate(t *testing.T) {
	m := NewExpAvgMeasurement(10, 2.0)
	m.Add(100)
	m.Update(func(v float64) float64 { return v * 0.95 })
	assert.InDelta(t, 95, m.Value(), 0.001)
}

func TestExpAvgMeasurementReset(t *testing.T) {
	m := NewExpAvgMeasurement(10, 2.0)
	m.Add(100)
	m.Reset()
	assert.Equal(t, float64(0), m.Value())
	assert.Equal(t, float64(50), m.Add(50))
}
