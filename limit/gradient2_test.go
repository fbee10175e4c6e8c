package limit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGradient2BaselineLearnsAndGrows(t *testing.T) {
	g := NewGradient2(50, WithGradient2Limits(1, 1000))
	g.OnSample(time.Now(), 10*time.Millisecond, 40, false)
	assert.Equal(t, 52, g.EstimatedLimit()) // smoothed(50->58) rounds to 52
}

func TestGradient2RisingRTTShrinksGradually(t *testing.T) {
	g := NewGradient2(50, WithGradient2Limits(1, 1000))
	g.OnSample(time.Now(), 10*time.Millisecond, 40, false)
	g.OnSample(time.Now(), 20*time.Millisecond, 40, false)
	assert.Equal(t, 51, g.EstimatedLimit())
}

func TestGradient2DropBacksOff(t *testing.T) {
	g := NewGradient2(50, WithGradient2Limits(1, 1000))
	g.OnSample(time.Now(), 10*time.Millisecond, 40, false)
	g.OnSample(time.Now(), 10*time.Millisecond, 40, true)
	assert.Equal(t, 51, g.EstimatedLimit())
}

func TestGradient2AppLimitedGuardDoesNotChangeLimit(t *testing.T) {
	g := NewGradient2(50, WithGradient2Limits(1, 1000))
	g.OnSample(time.Now(), 10*time.Millisecond, 40, false)
	before := g.EstimatedLimit()
	g.OnSample(time.Now(), 5*time.Millisecond, 10, false) // inFlight(10) < limit/2
	assert.Equal(t, before, g.EstimatedLimit())
}

// TestGradient2RapidRecoveryShrinksBaseline exercises the 5% longRTT shrink
// that triggers when the baseline runs far ahead of the newest sample
// (longRTT/shortRTT > 2), so a stale high baseline doesn't linger.
func TestGradient2RapidRecoveryShrinksBaseline(t *testing.T) {
	g := NewGradient2(50, WithGradient2Limits(1, 1000))
	g.OnSample(time.Now(), 100*time.Millisecond, 40, false)
	g.OnSample(time.Now(), 10*time.Millisecond, 40, false)

	assert.InDelta(t, float64(52250*time.Microsecond), g.longRTT.Value(), float64(time.Microsecond))
}

func TestGradient2IgnoresNonPositiveRTT(t *testing.T) {
	g := NewGradient2(50)
	g.OnSample(time.Now(), 0, 40, false)
	assert.Equal(t, 50, g.EstimatedLimit())
}
