package quota

import (
	"fmt"
	"sync"
	"time"

	"marketdata/internal/provider"
)

// Tracker accounts requests per provider over fixed wall-clock windows.
// It is the sole owner of quota state; callers reserve before fetching and
// release a reservation when the fetch is aborted or fails, so a transient
// failure never burns quota permanently.
type Tracker struct {
	mu      sync.Mutex
	limits  map[string]provider.RateLimit
	windows map[string]*window

	now func() time.Time
}

type window struct {
	start time.Time
	used  int
}

func NewTracker() *Tracker {
	return &Tracker{
		limits:  make(map[string]provider.RateLimit),
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Register installs a provider's budget. A zero Count means unlimited.
func (t *Tracker) Register(providerID string, limit provider.RateLimit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[providerID] = limit
}

// current returns the provider's window for the present wall-clock slot,
// resetting lazily when the previous slot has elapsed. Callers hold t.mu.
func (t *Tracker) current(providerID string, limit provider.RateLimit) *window {
	start := t.now().Truncate(limit.Window)
	w := t.windows[providerID]
	if w == nil || w.start.Before(start) {
		w = &window{start: start}
		t.windows[providerID] = w
	}
	return w
}

// TryReserve takes one slot from the provider's current window. It never
// blocks; exhausted windows fail immediately with ErrRateLimited so the
// caller can move on to the next candidate.
func (t *Tracker) TryReserve(providerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit, ok := t.limits[providerID]
	if !ok {
		return fmt.Errorf("quota: unknown provider %q", providerID)
	}
	if limit.Count <= 0 || limit.Window <= 0 {
		return nil
	}
	w := t.current(providerID, limit)
	if w.used >= limit.Count {
		return fmt.Errorf("quota: %s window exhausted (%d/%d): %w",
			providerID, w.used, limit.Count, provider.ErrRateLimited)
	}
	w.used++
	return nil
}

// Release returns one reservation to the current window. Reservations made
// in an already-elapsed window are gone; releasing them is a no-op.
func (t *Tracker) Release(providerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit, ok := t.limits[providerID]
	if !ok || limit.Count <= 0 || limit.Window <= 0 {
		return
	}
	w := t.current(providerID, limit)
	if w.used > 0 {
		w.used--
	}
}

// Remaining reports unreserved slots in the provider's current window.
// Unlimited providers report the largest int.
func (t *Tracker) Remaining(providerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit, ok := t.limits[providerID]
	if !ok {
		return 0
	}
	if limit.Count <= 0 || limit.Window <= 0 {
		return int(^uint(0) >> 1)
	}
	w := t.current(providerID, limit)
	return limit.Count - w.used
}

// WindowRemaining reports how long until the provider's window resets.
func (t *Tracker) WindowRemaining(providerID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit, ok := t.limits[providerID]
	if !ok || limit.Window <= 0 {
		return 0
	}
	w := t.current(providerID, limit)
	return w.start.Add(limit.Window).Sub(t.now())
}
