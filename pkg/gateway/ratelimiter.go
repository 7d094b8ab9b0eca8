package gateway

import (
	"sync"
	"time"
)

// Turn limits per WebSocket client
const (
	DefaultTurnsPerMinute   = 30
	DefaultConcurrentTurns  = 2
	reasonTooManyConcurrent = "too many concurrent turns"
	reasonRateLimitExceeded = "rate limit exceeded"
	turnLimiterWindow       = time.Minute
)

// TurnLimiter bounds how many turns one client may start, over a sliding one-minute window
// and concurrently
type TurnLimiter struct {
	mu            sync.Mutex
	perMinute     int
	maxConcurrent int
	started       []time.Time
	running       int
	now           func() time.Time
}

// NewTurnLimiter creates a limiter; non-positive limits take the defaults
func NewTurnLimiter(perMinute, maxConcurrent int) *TurnLimiter {
	if perMinute <= 0 {
		perMinute = DefaultTurnsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConcurrentTurns
	}
	return &TurnLimiter{
		perMinute:     perMinute,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}
}

// Begin reserves a turn slot. On success the caller must call End when the turn finishes.
func (l *TurnLimiter) Begin() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running >= l.maxConcurrent {
		return false, reasonTooManyConcurrent
	}

	now := l.now()
	l.prune(now)
	if len(l.started) >= l.perMinute {
		return false, reasonRateLimitExceeded
	}

	l.started = append(l.started, now)
	l.running++
	return true, ""
}

// End releases a slot taken by Begin
func (l *TurnLimiter) End() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running > 0 {
		l.running--
	}
}

// Stats returns turns started within the window and turns running
func (l *TurnLimiter) Stats() (started, running int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.started), l.running
}

func (l *TurnLimiter) prune(now time.Time) {
	cutoff := now.Add(-turnLimiterWindow)
	i := 0
	for i < len(l.started) && !l.started[i].After(cutoff) {
		i++
	}
	l.started = l.started[i:]
}
