package chat

import (
	"sync"
	"time"
)

// Defaults for the brute-force lockout policy.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 5 * time.Minute
)

type abuseRecord struct {
	failures     int
	lastFailure  time.Time
	blockedUntil time.Time
}

// AbuseGuard tracks failed verification attempts per origin address and
// locks an address out once the failure threshold is reached. The counter
// resets to zero when the lockout starts, so the next window begins fresh
// after it expires, and on any successful verification. Records whose
// last failure is older than the lockout duration are swept lazily, so
// addresses that dribble a few failures and go away do not accumulate.
type AbuseGuard struct {
	mu        sync.Mutex
	records   map[string]*abuseRecord
	threshold int
	lockout   time.Duration
	nextSweep time.Time
}

// NewAbuseGuard creates a guard with the given threshold and lockout
// duration. Non-positive values fall back to the defaults.
func NewAbuseGuard(threshold int, lockout time.Duration) *AbuseGuard {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	return &AbuseGuard{
		records:   make(map[string]*abuseRecord),
		threshold: threshold,
		lockout:   lockout,
	}
}

// Blocked reports whether the address is currently locked out and, if so,
// how long the lockout has left. Expired records with no fresh failures
// are dropped on the way out.
func (g *AbuseGuard) Blocked(addr string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.sweepLocked(now)
	rec, ok := g.records[addr]
	if !ok {
		return 0, false
	}
	if rec.blockedUntil.After(now) {
		return rec.blockedUntil.Sub(now), true
	}
	if rec.failures == 0 {
		delete(g.records, addr)
	}
	return 0, false
}

// RecordFailure counts one failed attempt against the address. It returns
// true when this failure triggered a lockout. Attempts made while already
// locked out must not reach here; callers check Blocked first.
func (g *AbuseGuard) RecordFailure(addr string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.sweepLocked(now)
	rec, ok := g.records[addr]
	if !ok {
		rec = &abuseRecord{}
		g.records[addr] = rec
	}
	rec.failures++
	rec.lastFailure = now
	if rec.failures >= g.threshold {
		rec.failures = 0
		rec.blockedUntil = now.Add(g.lockout)
		return true
	}
	return false
}

// sweepLocked drops records that are neither locked out nor recently
// active. Runs at most once per lockout interval.
func (g *AbuseGuard) sweepLocked(now time.Time) {
	if now.Before(g.nextSweep) {
		return
	}
	g.nextSweep = now.Add(g.lockout)
	for addr, rec := range g.records {
		if rec.blockedUntil.After(now) {
			continue
		}
		if now.Sub(rec.lastFailure) >= g.lockout {
			delete(g.records, addr)
		}
	}
}

// Clear removes the record for an address after a successful verification.
func (g *AbuseGuard) Clear(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, addr)
}
