// Package flood implements the per-sender flood-control gate for message
// sends: a sliding window of recent send timestamps plus a hard lock once
// the window overflows.
package flood

import (
	"fmt"
	"sync"
	"time"
)

// Defaults: more than 5 sends inside a trailing 1s window trips a 10s lock.
const (
	DefaultThreshold = 5
	DefaultWindow    = time.Second
	DefaultLock      = 10 * time.Second
)

// RateLimitedError reports a rejected send and how long the sender remains
// locked. It is handled locally (lock input, show countdown) and never
// reaches the store.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// Seconds returns the remaining cooldown rounded up to whole seconds, the
// value a countdown display decrements through.
func (e *RateLimitedError) Seconds() int {
	s := int((e.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

type senderEntry struct {
	window      []time.Time
	lockedUntil time.Time
	lastSeen    time.Time
}

// Gate maintains per-sender sliding windows and performs periodic cleanup of
// idle senders. The window is owned by the local session only; server-side
// abuse protection is independent of it.
type Gate struct {
	mu              sync.Mutex
	threshold       int
	window          time.Duration
	lockFor         time.Duration
	senders         map[string]*senderEntry
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once

	now func() time.Time
}

// NewGate creates a gate with the given parameters; zero values select the
// defaults. A background loop drops senders idle for ten minutes.
func NewGate(threshold int, window, lockFor, cleanupInterval time.Duration) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if lockFor <= 0 {
		lockFor = DefaultLock
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	g := &Gate{
		threshold:       threshold,
		window:          window,
		lockFor:         lockFor,
		senders:         map[string]*senderEntry{},
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}
	go g.cleanupLoop()
	return g
}

func (g *Gate) cleanupLoop() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := g.now().Add(-10 * time.Minute)
			g.mu.Lock()
			for k, e := range g.senders {
				if e.lastSeen.Before(cutoff) && e.lockedUntil.Before(g.now()) {
					delete(g.senders, k)
				}
			}
			g.mu.Unlock()
		case <-g.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine (useful for tests and unmount).
func (g *Gate) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
}

// SetClock overrides the gate's clock. Intended for tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Allow records a send attempt for the sender and decides whether it may
// proceed. While a lock is active every attempt is rejected immediately
// without re-evaluating the window. The attempt that overflows the window is
// itself rejected and starts the lock.
func (g *Gate) Allow(senderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, ok := g.senders[senderID]
	if !ok {
		e = &senderEntry{}
		g.senders[senderID] = e
	}
	e.lastSeen = now

	if e.lockedUntil.After(now) {
		return &RateLimitedError{RetryAfter: e.lockedUntil.Sub(now)}
	}

	// Push the attempt, then prune everything older than the window.
	e.window = append(e.window, now)
	cutoff := now.Add(-g.window)
	kept := e.window[:0]
	for _, t := range e.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.window = kept

	if len(e.window) > g.threshold {
		e.lockedUntil = now.Add(g.lockFor)
		return &RateLimitedError{RetryAfter: g.lockFor}
	}
	return nil
}

// LockedUntil returns the sender's lock deadline and whether a lock is
// currently active. Callers poll this (or Remaining) for countdown display
// instead of the gate owning any UI timer.
func (g *Gate) LockedUntil(senderID string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.senders[senderID]
	if !ok {
		return time.Time{}, false
	}
	if !e.lockedUntil.After(g.now()) {
		return time.Time{}, false
	}
	return e.lockedUntil, true
}

// Remaining returns the sender's remaining cooldown, zero when unlocked.
func (g *Gate) Remaining(senderID string) time.Duration {
	until, ok := g.LockedUntil(senderID)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return until.Sub(g.now())
}

// Reset clears the sender's window and any pending lock. Called when the
// owning view unmounts.
func (g *Gate) Reset(senderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.senders, senderID)
}
