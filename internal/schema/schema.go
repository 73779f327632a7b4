package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidRequest marks a request rejected before any provider is contacted.
var ErrInvalidRequest = errors.New("invalid request")

// AssetClass is the coarse instrument category a provider may or may not cover.
type AssetClass string

const (
	ClassEquity AssetClass = "equity"
	ClassETF    AssetClass = "etf"
	ClassCrypto AssetClass = "crypto"
)

// ParseAssetClass maps external spellings onto an AssetClass.
func ParseAssetClass(s string) (AssetClass, error) {
	switch AssetClass(strings.ToLower(strings.TrimSpace(s))) {
	case ClassEquity:
		return ClassEquity, nil
	case ClassETF:
		return ClassETF, nil
	case ClassCrypto:
		return ClassCrypto, nil
	}
	return "", fmt.Errorf("%w: unknown asset class %q", ErrInvalidRequest, s)
}

// Resolution is the bar interval of a series.
type Resolution string

const (
	Res1m Resolution = "1m"
	Res5m Resolution = "5m"
	Res1h Resolution = "1h"
	Res1d Resolution = "1d"
)

// ParseResolution maps external spellings onto a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(strings.ToLower(strings.TrimSpace(s))) {
	case Res1m:
		return Res1m, nil
	case Res5m:
		return Res5m, nil
	case Res1h:
		return Res1h, nil
	case Res1d:
		return Res1d, nil
	}
	return "", fmt.Errorf("%w: unknown resolution %q", ErrInvalidRequest, s)
}

// Duration returns the bar interval as a time.Duration.
func (r Resolution) Duration() time.Duration {
	switch r {
	case Res1m:
		return time.Minute
	case Res5m:
		return 5 * time.Minute
	case Res1h:
		return time.Hour
	case Res1d:
		return 24 * time.Hour
	}
	return 0
}

// Intraday reports whether the resolution is finer than one day.
func (r Resolution) Intraday() bool {
	d := r.Duration()
	return d > 0 && d < 24*time.Hour
}

// AssetIdentifier names one tradable instrument in canonical spelling.
// Provider-specific symbol spellings are mapped by each adapter.
type AssetIdentifier struct {
	Symbol string     `json:"symbol"`
	Class  AssetClass `json:"class"`
}

func (a AssetIdentifier) String() string {
	return a.Symbol + ":" + string(a.Class)
}

// TimeRange is the half-open interval [Start, End) at a given resolution.
type TimeRange struct {
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Resolution Resolution `json:"resolution"`
}

// Contains reports whether ts falls inside the half-open interval.
func (tr TimeRange) Contains(ts time.Time) bool {
	return !ts.Before(tr.Start) && ts.Before(tr.End)
}

// Bar is the normalized OHLCV shape every provider response is translated into.
// Timestamps are UTC; prices are rounded with RoundPrice so adapters covering
// the same instrument produce comparable series.
type Bar struct {
	Asset     AssetIdentifier `json:"asset"`
	Timestamp time.Time       `json:"timestamp"`
	Open      float64         `json:"open"`
	High      float64         `json:"high"`
	Low       float64         `json:"low"`
	Close     float64         `json:"close"`
	Volume    float64         `json:"volume"`
}

// RoundPrice applies the canonical price rounding convention (4 decimals).
func RoundPrice(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// FetchRequest asks for one asset's bars over one range.
type FetchRequest struct {
	Asset AssetIdentifier `json:"asset"`
	Range TimeRange       `json:"range"`
}

// Validate rejects malformed requests before any provider is contacted.
func (r FetchRequest) Validate() error {
	if strings.TrimSpace(r.Asset.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidRequest)
	}
	if _, err := ParseAssetClass(string(r.Asset.Class)); err != nil {
		return err
	}
	if _, err := ParseResolution(string(r.Range.Resolution)); err != nil {
		return err
	}
	if r.Range.Start.IsZero() || r.Range.End.IsZero() {
		return fmt.Errorf("%w: zero range bound", ErrInvalidRequest)
	}
	if !r.Range.Start.Before(r.Range.End) {
		return fmt.Errorf("%w: start %s not before end %s", ErrInvalidRequest,
			r.Range.Start.Format(time.RFC3339), r.Range.End.Format(time.RFC3339))
	}
	return nil
}

// Key is a stable identity string for coalescing and cache addressing.
func (r FetchRequest) Key() string {
	return fmt.Sprintf("%s|%d|%d|%s",
		r.Asset, r.Range.Start.UnixNano(), r.Range.End.UnixNano(), r.Range.Resolution)
}

// FetchResult is what consumers receive for a FetchRequest.
type FetchResult struct {
	Series           []Bar  `json:"series"`
	SourceProviderID string `json:"source_provider_id"`
	ServedFromCache  bool   `json:"served_from_cache"`
}
