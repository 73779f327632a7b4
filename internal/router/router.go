package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"marketdata/internal/cache"
	"marketdata/internal/provider"
	"marketdata/internal/quota"
	"marketdata/internal/schema"
)

// ErrNoProviderAvailable is the terminal failure after every candidate was
// unsupported, exhausted, or failed. It is the only failure consumers are
// expected to handle routinely.
var ErrNoProviderAvailable = errors.New("no provider available")

// Options tune provider selection for a single request.
type Options struct {
	// Provider pins the request to one provider id, skipping failover.
	Provider string
	// PreferPaid tries paid-tier providers before free ones.
	PreferPaid bool
}

// Config wires a Router.
type Config struct {
	Quota        *quota.Tracker
	Store        cache.Store
	TTL          cache.TTLPolicy
	FetchTimeout time.Duration
}

//go:generate mockgen -package=router_test -destination=mock_adapter_test.go marketdata/internal/provider Adapter

// Router resolves fetch requests: cache first, then an ordered walk over
// eligible providers with quota reservation around every network call.
// Adapters are registered at startup and the registry is read-only after.
type Router struct {
	quota        *quota.Tracker
	store        cache.Store
	ttl          cache.TTLPolicy
	fetchTimeout time.Duration
	adapters     map[string]provider.Adapter
	now          func() time.Time
}

func New(cfg Config) *Router {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	return &Router{
		quota:        cfg.Quota,
		store:        cfg.Store,
		ttl:          cfg.TTL,
		fetchTimeout: cfg.FetchTimeout,
		adapters:     make(map[string]provider.Adapter),
		now:          time.Now,
	}
}

// Register adds an adapter and installs its rate limit with the tracker.
func (r *Router) Register(a provider.Adapter) {
	d := a.Describe()
	r.adapters[d.ID] = a
	r.quota.Register(d.ID, d.RateLimit)
}

// Resolve runs one request through the state machine:
// cache check -> select provider -> reserve quota -> fetch -> validate ->
// cache write, with failover to the next candidate on any attempt failure
// and ErrNoProviderAvailable once candidates are exhausted.
func (r *Router) Resolve(ctx context.Context, req schema.FetchRequest, opts Options) (schema.FetchResult, error) {
	candidates := r.candidates(req.Asset.Class, opts)
	if len(candidates) == 0 {
		return schema.FetchResult{}, fmt.Errorf("%w: no provider supports %s", ErrNoProviderAvailable, req.Asset)
	}

	// Cache short-circuit: a valid entry from any eligible provider wins.
	for _, d := range candidates {
		key := cache.Key{Asset: req.Asset, Range: req.Range, ProviderID: d.ID}
		entry, ok, err := r.store.Get(ctx, key)
		if err != nil {
			log.Printf("router: cache get %s: %v", key, err)
			continue
		}
		if ok {
			return schema.FetchResult{Series: entry.Bars, SourceProviderID: d.ID, ServedFromCache: true}, nil
		}
	}

	var lastErr error
	for _, d := range candidates {
		if err := ctx.Err(); err != nil {
			return schema.FetchResult{}, err
		}
		if err := r.quota.TryReserve(d.ID); err != nil {
			lastErr = err
			continue
		}
		bars, err := r.fetch(ctx, d, req)
		if err != nil {
			r.quota.Release(d.ID)
			if ctx.Err() != nil {
				// Caller cancellation, not a provider fault.
				return schema.FetchResult{}, ctx.Err()
			}
			if errors.Is(err, provider.ErrUnauthenticated) {
				log.Printf("router: %s rejected credential: %v", d.ID, err)
			} else {
				log.Printf("router: %s failed, trying next candidate: %v", d.ID, err)
			}
			lastErr = err
			continue
		}
		key := cache.Key{Asset: req.Asset, Range: req.Range, ProviderID: d.ID}
		entry := cache.Entry{Bars: bars, FetchedAt: r.now(), TTL: r.ttl.For(req.Range, r.now())}
		if err := r.store.Put(ctx, key, entry); err != nil {
			log.Printf("router: cache put %s: %v", key, err)
		}
		return schema.FetchResult{Series: bars, SourceProviderID: d.ID, ServedFromCache: false}, nil
	}
	return schema.FetchResult{}, fmt.Errorf("%w: last error: %w", ErrNoProviderAvailable, lastErr)
}

// fetch runs one bounded adapter attempt and validates its output. A series
// failing validation is reported as malformed, never returned upward.
func (r *Router) fetch(ctx context.Context, d provider.Descriptor, req schema.FetchRequest) ([]schema.Bar, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	bars, err := r.adapters[d.ID].FetchBars(fetchCtx, req.Asset, req.Range)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s timed out: %w", d.ID, provider.ErrUpstreamUnavailable)
		}
		return nil, err
	}
	if verr := schema.ValidateSeries(bars); verr != nil {
		return nil, fmt.Errorf("%s series rejected (%v): %w", d.ID, verr, provider.ErrMalformedResponse)
	}
	return bars, nil
}

// candidates orders eligible providers: pinned provider only when set,
// otherwise free tier before paid (flipped by PreferPaid), then configured
// priority rank, then more remaining quota in the current window.
func (r *Router) candidates(class schema.AssetClass, opts Options) []provider.Descriptor {
	out := make([]provider.Descriptor, 0, len(r.adapters))
	for id, a := range r.adapters {
		d := a.Describe()
		if !d.Supports(class) {
			continue
		}
		if opts.Provider != "" && id != opts.Provider {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			iPaid := out[i].Tier == provider.TierPaid
			return iPaid == opts.PreferPaid
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		ri, rj := r.quota.Remaining(out[i].ID), r.quota.Remaining(out[j].ID)
		if ri != rj {
			return ri > rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}
