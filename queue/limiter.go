package queue

import (
	"sync"
	"time"
)

// StartLimiter is a sliding-window counter bounding how many jobs may start
// within the window. Starts are recorded on admission; expired entries fall
// out of the window as time passes.
type StartLimiter struct {
	max    int
	window time.Duration
	starts []time.Time
	now    func() time.Time
	mu     sync.Mutex
}

// NewStartLimiter builds a limiter admitting max starts per window.
func NewStartLimiter(max int, window time.Duration) *StartLimiter {
	return &StartLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow records a start and returns true if the window has room.
func (l *StartLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.starts) >= l.max {
		return false
	}
	l.starts = append(l.starts, now)
	return true
}

// RetryAt returns when the oldest start leaves the window, i.e. the earliest
// moment a denied caller should try again.
func (l *StartLimiter) RetryAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.starts) < l.max {
		return now
	}
	return l.starts[0].Add(l.window)
}

// InWindow reports the number of starts currently inside the window.
func (l *StartLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return len(l.starts)
}

func (l *StartLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.starts = append(l.starts[:0], l.starts[i:]...)
	}
}

// SetClock overrides the limiter's time source. Test hook.
func (l *StartLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
