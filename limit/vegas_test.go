package limit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVegasFirstSampleLearnsBaseline(t *testing.T) {
	v := NewVegas(10, WithVegasProbeMultiplier(1000))
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false)
	assert.Equal(t, 10, v.EstimatedLimit())
	assert.Equal(t, float64(10*time.Millisecond), v.rttNoLoad)
}

func TestVegasThresholdZoneIncreasesByBeta(t *testing.T) {
	v := NewVegas(10, WithVegasProbeMultiplier(1000))
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false) // learn baseline
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false) // queueSize=0 <= threshold(1) -> beta increase
	assert.Equal(t, 17, v.EstimatedLimit())                // 10 + beta(10)=10+7
}

func TestVegasOverloadZoneDecreases(t *testing.T) {
	v := NewVegas(10, WithVegasProbeMultiplier(1000))
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false) // learn baseline
	// queueSize = ceil(10*(1-10/40)) = ceil(7.5) = 8 > beta(7) -> decrease
	v.OnSample(time.Now(), 40*time.Millisecond, 20, false)
	assert.Equal(t, 9, v.EstimatedLimit()) // 10 - log10(10) = 10-1
}

func TestVegasDropDecreases(t *testing.T) {
	v := NewVegas(10, WithVegasProbeMultiplier(1000))
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false) // learn baseline
	v.OnSample(time.Now(), 10*time.Millisecond, 20, true)  // drop
	assert.Equal(t, 9, v.EstimatedLimit())                 // decrease(10) = 10-log10(10) = 9
}

func TestVegasAppLimitedGuardDoesNotChange(t *testing.T) {
	v := NewVegas(10, WithVegasProbeMultiplier(1000))
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false) // learn baseline
	v.OnSample(time.Now(), 20*time.Millisecond, 1, false)  // inFlight*2=2 < limit(10): app-limited
	assert.Equal(t, 10, v.EstimatedLimit())
}

func TestVegasLowerRTTRelearnsBaseline(t *testing.T) {
	v := NewVegas(10, WithVegasProbeMultiplier(1000))
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false)
	v.OnSample(time.Now(), 5*time.Millisecond, 20, false) // lower than baseline: re-learn, no zone eval
	assert.Equal(t, float64(5*time.Millisecond), v.rttNoLoad)
	assert.Equal(t, 10, v.EstimatedLimit())
}

func TestVegasClampsToMinMax(t *testing.T) {
	v := NewVegas(10, WithVegasLimits(1, 12), WithVegasProbeMultiplier(1000))
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false)
	v.OnSample(time.Now(), 10*time.Millisecond, 20, false) // would grow to 17, clamped to 12
	assert.Equal(t, 12, v.EstimatedLimit())
}

func TestVegasNotifiesSubscribers(t *testing.T) {
	v := NewVegas(10, WithVegasProbeMultiplier(1000))
	var notifications []int
	v.Subscribe(func(l int) { notifications = append(notifications, l) })

	v.OnSample(time.Now(), 10*time.Millisecond, 20, false)
	assert.Empty(t, notifications) // baseline-learning sample doesn't notify

	v.OnSample(time.Now(), 10*time.Millisecond, 20, false)
	assert.Equal(t, []int{17}, notifications)
}
