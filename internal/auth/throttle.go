// Package auth holds the login gate of the relay: the per-address brute-force
// throttle and the store of authenticated sessions.
package auth

import (
	"sync"
	"time"
)

// Default throttle parameters.
const (
	DefaultMaxAttempts  = 5
	DefaultWindow       = 600 * time.Second
	DefaultLockDuration = 600 * time.Second
)

// Status is the lock state reported to a login client.
type Status struct {
	Locked            bool `json:"locked"`
	RemainingAttempts int  `json:"remaining_attempts"`
	RemainingSeconds  int  `json:"remaining_time"`
}

type attemptRecord struct {
	attempts    int
	windowStart time.Time
	lockedUntil time.Time // zero when not locked
}

func (r *attemptRecord) locked(now time.Time) bool {
	return !r.lockedUntil.IsZero() && now.Before(r.lockedUntil)
}

func (r *attemptRecord) lockExpired(now time.Time) bool {
	return !r.lockedUntil.IsZero() && !now.Before(r.lockedUntil)
}

// Throttle counts failed logins per client address inside a sliding window
// and locks the address out once the limit is reached.
type Throttle struct {
	mu           sync.Mutex
	records      map[string]*attemptRecord
	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
}

// NewThrottle creates a throttle. Non-positive arguments fall back to the
// defaults.
func NewThrottle(maxAttempts int, window, lockDuration time.Duration) *Throttle {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	return &Throttle{
		records:      make(map[string]*attemptRecord),
		maxAttempts:  maxAttempts,
		window:       window,
		lockDuration: lockDuration,
	}
}

// MaxAttempts returns the configured failure limit.
func (t *Throttle) MaxAttempts() int {
	return t.maxAttempts
}

// Check reports the lock status of addr, clearing an expired lock or an
// elapsed window on the way.
func (t *Throttle) Check(addr string, now time.Time) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[addr]
	if !ok {
		return t.clearStatus()
	}

	if rec.locked(now) {
		secs := int(rec.lockedUntil.Sub(now) / time.Second)
		if secs < 0 {
			secs = 0
		}
		return Status{Locked: true, RemainingAttempts: 0, RemainingSeconds: secs}
	}

	if rec.lockExpired(now) {
		t.reset(rec, now, true)
		return t.clearStatus()
	}

	if now.Sub(rec.windowStart) > t.window {
		t.reset(rec, now, false)
		return t.clearStatus()
	}

	remaining := t.maxAttempts - rec.attempts
	if remaining < 0 {
		remaining = 0
	}
	return Status{RemainingAttempts: remaining}
}

// RecordFailure counts one failed login from addr. Failures while locked are
// ignored.
func (t *Throttle) RecordFailure(addr string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[addr]
	if !ok {
		rec = &attemptRecord{windowStart: now}
		t.records[addr] = rec
	} else {
		if rec.locked(now) {
			return
		}
		if rec.lockExpired(now) {
			t.reset(rec, now, true)
		} else if now.Sub(rec.windowStart) > t.window {
			t.reset(rec, now, false)
		}
	}

	rec.attempts++
	if rec.attempts >= t.maxAttempts {
		rec.lockedUntil = now.Add(t.lockDuration)
	}
}

// RecordSuccess zeroes the attempt count and restarts the window. An active
// lock is left in place.
func (t *Throttle) RecordSuccess(addr string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[addr]
	if !ok {
		t.records[addr] = &attemptRecord{windowStart: now}
		return
	}
	t.reset(rec, now, false)
}

// Sweep drops unlocked records whose window elapsed. It returns how many
// were removed.
func (t *Throttle) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for addr, rec := range t.records {
		if rec.locked(now) {
			continue
		}
		if rec.lockExpired(now) || now.Sub(rec.windowStart) > t.window {
			delete(t.records, addr)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked addresses.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// RunSweeper calls Sweep every interval until stop is closed.
func (t *Throttle) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			t.Sweep(now)
		case <-stop:
			return
		}
	}
}

// reset restarts the window. full also clears the lock.
// NOTE: caller must hold t.mu
func (t *Throttle) reset(rec *attemptRecord, now time.Time, full bool) {
	rec.attempts = 0
	rec.windowStart = now
	if full {
		rec.lockedUntil = time.Time{}
	}
}

func (t *Throttle) clearStatus() Status {
	return Status{RemainingAttempts: t.maxAttempts}
}
