package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// LogRateLimiter bounds how often a warning is logged per key, e.g. per
// abort tag. Counts are kept per fixed window and reset when it expires.
type LogRateLimiter struct {
	mu           sync.Mutex
	current      map[string]*atomic.Int64 // key → events in current window
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow int64

	suppressed atomic.Int64
}

// LogRateLimiterConfig configures per-key log limiting.
type LogRateLimiterConfig struct {
	MaxPerKey int           // events logged per key per window (0 = unlimited)
	Window    time.Duration // default 10s
}

// NewLogRateLimiter returns nil when limiting is disabled; a nil limiter
// allows everything.
func NewLogRateLimiter(cfg LogRateLimiterConfig) *LogRateLimiter {
	if cfg.MaxPerKey <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	return &LogRateLimiter{
		current:      make(map[string]*atomic.Int64),
		windowStart:  time.Now(),
		windowSize:   cfg.Window,
		maxPerWindow: int64(cfg.MaxPerKey),
	}
}

// Allow reports whether an event for key may be logged at now.
func (l *LogRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()

	if now.Sub(l.windowStart) >= l.windowSize {
		l.current = make(map[string]*atomic.Int64)
		l.windowStart = now
	}

	counter, exists := l.current[key]
	if !exists {
		counter = &atomic.Int64{}
		l.current[key] = counter
	}
	l.mu.Unlock()

	if counter.Add(1) > l.maxPerWindow {
		l.suppressed.Add(1)
		return false
	}
	return true
}

// Suppressed returns the number of events that were not logged.
func (l *LogRateLimiter) Suppressed() int64 {
	if l == nil {
		return 0
	}
	return l.suppressed.Load()
}

// ActiveKeys returns the number of distinct keys in the current window.
func (l *LogRateLimiter) ActiveKeys() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.current)
}
