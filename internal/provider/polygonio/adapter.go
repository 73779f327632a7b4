package polygonio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marketdata/internal/provider"
	"marketdata/internal/schema"
)

// Config controls the Polygon adapter.
type Config struct {
	Descriptor provider.Descriptor
	// SymbolMap overrides canonical-to-upstream ticker spellings.
	// Crypto symbols default to the "X:<SYM>USD" pair when unmapped.
	SymbolMap map[string]string
}

// Adapter fetches bars through the Polygon aggregates client. Paid tier,
// all three asset classes, full intraday and daily history.
type Adapter struct {
	cfg    Config
	client *Client
}

func NewAdapter(cfg Config, client *Client) *Adapter {
	if cfg.Descriptor.ID == "" {
		cfg.Descriptor.ID = "polygon"
	}
	if cfg.Descriptor.Tier == "" {
		cfg.Descriptor.Tier = provider.TierPaid
	}
	if len(cfg.Descriptor.SupportedClasses) == 0 {
		cfg.Descriptor.SupportedClasses = []schema.AssetClass{
			schema.ClassEquity, schema.ClassETF, schema.ClassCrypto,
		}
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Describe() provider.Descriptor { return a.cfg.Descriptor }

func (a *Adapter) FetchBars(ctx context.Context, asset schema.AssetIdentifier, rng schema.TimeRange) ([]schema.Bar, error) {
	multiplier, timespan, ok := timespans(rng.Resolution)
	if !ok {
		return nil, fmt.Errorf("polygon: resolution %s: %w", rng.Resolution, provider.ErrUnsupportedAsset)
	}

	// The API range is inclusive on both ends; pull up to End and trim the
	// half-open boundary below.
	aggs, err := a.client.GetAggs(ctx, a.ticker(asset), multiplier, timespan, rng.Start, rng.End)
	if err != nil {
		return nil, a.classify(err, asset)
	}

	bars := make([]schema.Bar, 0, len(aggs))
	for _, agg := range aggs {
		ts := time.UnixMilli(agg.Timestamp).UTC()
		if !rng.Contains(ts) {
			continue
		}
		bars = append(bars, schema.Bar{
			Asset:     asset,
			Timestamp: ts,
			Open:      schema.RoundPrice(agg.Open),
			High:      schema.RoundPrice(agg.High),
			Low:       schema.RoundPrice(agg.Low),
			Close:     schema.RoundPrice(agg.Close),
			Volume:    agg.Volume,
		})
	}
	return bars, nil
}

func (a *Adapter) classify(err error, asset schema.AssetIdentifier) error {
	var st errStatus
	if errors.As(err, &st) {
		switch st.code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("polygon: %v: %w", err, provider.ErrUnauthenticated)
		case http.StatusTooManyRequests:
			return fmt.Errorf("polygon: %v: %w", err, provider.ErrRateLimited)
		case http.StatusNotFound:
			return fmt.Errorf("polygon: %s: %w", asset, provider.ErrUnsupportedAsset)
		default:
			return fmt.Errorf("polygon: %v: %w", err, provider.ErrUpstreamUnavailable)
		}
	}
	var malformed errMalformed
	if errors.As(err, &malformed) {
		return fmt.Errorf("polygon: %v: %w", err, provider.ErrMalformedResponse)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("polygon: %v: %w", err, provider.ErrUpstreamUnavailable)
}

func (a *Adapter) ticker(asset schema.AssetIdentifier) string {
	if v := a.cfg.SymbolMap[asset.Symbol]; v != "" {
		return v
	}
	if asset.Class == schema.ClassCrypto {
		return "X:" + asset.Symbol + "USD"
	}
	return asset.Symbol
}

func timespans(r schema.Resolution) (int, string, bool) {
	switch r {
	case schema.Res1m:
		return 1, "minute", true
	case schema.Res5m:
		return 5, "minute", true
	case schema.Res1h:
		return 1, "hour", true
	case schema.Res1d:
		return 1, "day", true
	}
	return 0, "", false
}
