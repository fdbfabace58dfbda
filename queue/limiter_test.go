package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartLimiter_WindowAdmission(t *testing.T) {
	l := NewStartLimiter(3, time.Minute)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	l.SetClock(func() time.Time { return now })

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.Equal(t, 3, l.InWindow())

	// The first start leaves the window after a minute.
	assert.Equal(t, base.Add(time.Minute), l.RetryAt())

	now = base.Add(61 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestStartLimiter_SlidesContinuously(t *testing.T) {
	l := NewStartLimiter(2, 10*time.Second)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	l.SetClock(func() time.Time { return now })

	assert.True(t, l.Allow())
	now = base.Add(6 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	// Only the first start has aged out at t+11s.
	now = base.Add(11 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.Equal(t, 2, l.InWindow())
}

func TestStartLimiter_RetryAtWhenOpen(t *testing.T) {
	l := NewStartLimiter(1, time.Minute)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return base })

	// An open window retries immediately.
	assert.Equal(t, base, l.RetryAt())
}
