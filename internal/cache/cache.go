package cache

import (
	"context"
	"fmt"
	"time"

	"marketdata/internal/schema"
)

// Key addresses one cached series: who it is for, over what range, and which
// provider served it.
type Key struct {
	Asset      schema.AssetIdentifier
	Range      schema.TimeRange
	ProviderID string
}

// String is the stable form persistent backends index by.
func (k Key) String() string {
	return fmt.Sprintf("%s|%d|%d|%s|%s",
		k.Asset, k.Range.Start.UnixNano(), k.Range.End.UnixNano(), k.Range.Resolution, k.ProviderID)
}

// Entry is one cached series with its expiry policy. TTL <= 0 means the
// entry never expires (completed historical bars do not change).
type Entry struct {
	Bars      []schema.Bar
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry must be treated as a miss.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.FetchedAt.Add(e.TTL))
}

// Store is the cache contract the router talks through. Implementations own
// their mutable state exclusively and must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Put(ctx context.Context, key Key, entry Entry) error
	Invalidate(ctx context.Context, key Key) error
}

// TTLPolicy picks an entry lifetime per request shape: intraday resolutions
// and still-open ranges stay fresh only briefly, completed historical daily
// ranges keep forever.
type TTLPolicy struct {
	Intraday   time.Duration
	Historical time.Duration
}

// DefaultTTLPolicy keeps intraday data for five minutes and completed
// historical data indefinitely.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{Intraday: 5 * time.Minute}
}

// For returns the TTL to apply to a fresh entry for rng.
func (p TTLPolicy) For(rng schema.TimeRange, now time.Time) time.Duration {
	if rng.Resolution.Intraday() || rng.End.After(now.Add(-24*time.Hour)) {
		return p.Intraday
	}
	return p.Historical
}
