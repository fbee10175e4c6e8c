package limit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	f := NewFixed(42)
	assert.Equal(t, 42, f.EstimatedLimit())

	var notified bool
	f.Subscribe(func(int) { notified = true })
	f.OnSample(time.Now(), 10*time.Millisecond, 1, false)

	assert.Equal(t, 42, f.EstimatedLimit())
	assert.False(t, notified)
}

func TestSettable(t *testing.T) {
	s := NewSettable(10)
	assert.Equal(t, 10, s.EstimatedLimit())

	var notifications []int
	s.Subscribe(func(l int) { notifications = append(notifications, l) })

	s.SetLimit(10) // unchanged, no notification
	assert.Empty(t, notifications)

	s.SetLimit(20)
	assert.Equal(t, []int{20}, notifications)
	assert.Equal(t, 20, s.EstimatedLimit())

	s.OnSample(time.Now(), time.Millisecond, 5, true)
	assert.Equal(t, 20, s.EstimatedLimit())
}
