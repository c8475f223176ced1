package chat

import (
	"sync"
	"time"
)

// Defaults for the per-session message rate budget.
const (
	DefaultRateLimit  = 5
	DefaultRateWindow = 10 * time.Second
)

type rateWindow struct {
	count       int
	windowStart time.Time
}

// RateBudget is a fixed-window message limiter keyed by connection id.
// A reconnect starts a fresh budget. The window boundary is reset lazily
// on the first check after expiry.
type RateBudget struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*rateWindow
}

// NewRateBudget creates a limiter allowing limit messages per window.
// Non-positive values fall back to the defaults.
func NewRateBudget(limit int, window time.Duration) *RateBudget {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateBudget{
		limit:   limit,
		window:  window,
		entries: make(map[string]*rateWindow),
	}
}

// Check consumes one unit of the session's budget if available. A denied
// check leaves the window state unchanged.
func (b *RateBudget) Check(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	entry, ok := b.entries[id]
	if !ok {
		b.entries[id] = &rateWindow{count: 1, windowStart: now}
		return true
	}
	if now.Sub(entry.windowStart) >= b.window {
		entry.count = 1
		entry.windowStart = now
		return true
	}
	if entry.count >= b.limit {
		return false
	}
	entry.count++
	return true
}

// Forget drops the session's entry. Called on disconnect so the map
// never outgrows the set of live connections.
func (b *RateBudget) Forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
}
