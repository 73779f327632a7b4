package provider

import (
	"context"
	"time"

	"marketdata/internal/schema"
)

// Tier is the pricing tier of an upstream provider.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// RateLimit is a fixed-window request budget.
type RateLimit struct {
	Count  int
	Window time.Duration
}

// Descriptor is the static metadata a provider reports about itself.
// Built once at configuration load, immutable afterwards.
type Descriptor struct {
	ID               string
	SupportedClasses []schema.AssetClass
	Tier             Tier
	RateLimit        RateLimit
	Priority         int
}

// Supports reports whether the provider covers an asset class.
func (d Descriptor) Supports(class schema.AssetClass) bool {
	for _, c := range d.SupportedClasses {
		if c == class {
			return true
		}
	}
	return false
}

// Adapter is the narrow capability every upstream is wrapped into.
// FetchBars returns canonical bars for the half-open range or fails with one
// of the sentinel errors in errors.go. Adapters do not cache and do not
// account quota; Describe is pure and performs no network call.
type Adapter interface {
	FetchBars(ctx context.Context, asset schema.AssetIdentifier, rng schema.TimeRange) ([]schema.Bar, error)
	Describe() Descriptor
}
