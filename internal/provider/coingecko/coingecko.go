package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
	"marketdata/internal/schema"
)

// defaultIDs maps canonical crypto symbols to CoinGecko coin ids.
var defaultIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"LINK": "chainlink",
}

// Config controls the CoinGecko adapter.
type Config struct {
	Descriptor provider.Descriptor
	BaseURL    string
	APIKey     string
	// SymbolMap supplements defaultIDs with extra symbol-to-id mappings.
	SymbolMap map[string]string
}

// Adapter fetches crypto bars from the CoinGecko market-chart endpoint and
// buckets the raw price/volume points into canonical bars. Free tier,
// crypto only, resolutions of 5m and coarser.
type Adapter struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Adapter {
	if cfg.Descriptor.ID == "" {
		cfg.Descriptor.ID = "coingecko"
	}
	if cfg.Descriptor.Tier == "" {
		cfg.Descriptor.Tier = provider.TierFree
	}
	if len(cfg.Descriptor.SupportedClasses) == 0 {
		cfg.Descriptor.SupportedClasses = []schema.AssetClass{schema.ClassCrypto}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	return &Adapter{cfg: cfg, client: hc}
}

func (a *Adapter) Describe() provider.Descriptor { return a.cfg.Descriptor }

func (a *Adapter) FetchBars(ctx context.Context, asset schema.AssetIdentifier, rng schema.TimeRange) ([]schema.Bar, error) {
	if asset.Class != schema.ClassCrypto {
		return nil, fmt.Errorf("coingecko: class %s: %w", asset.Class, provider.ErrUnsupportedAsset)
	}
	if rng.Resolution == schema.Res1m {
		return nil, fmt.Errorf("coingecko: resolution %s: %w", rng.Resolution, provider.ErrUnsupportedAsset)
	}
	id := a.cfg.SymbolMap[asset.Symbol]
	if id == "" {
		id = defaultIDs[asset.Symbol]
	}
	if id == "" {
		return nil, fmt.Errorf("coingecko: no coin id for %s: %w", asset.Symbol, provider.ErrUnsupportedAsset)
	}

	u := fmt.Sprintf("%s/coins/%s/market_chart/range", a.cfg.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("coingecko: build request: %w", err)
	}
	q := req.URL.Query()
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(rng.Start.Unix(), 10))
	q.Set("to", strconv.FormatInt(rng.End.Unix(), 10))
	req.URL.RawQuery = q.Encode()
	if a.cfg.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", a.cfg.APIKey)
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: %v: %w", err, provider.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("coingecko: status %d: %w", resp.StatusCode, provider.ErrUnauthenticated)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("coingecko: status %d: %w", resp.StatusCode, provider.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("coingecko: coin %s: %w", id, provider.ErrUnsupportedAsset)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("coingecko: status %d: %w", resp.StatusCode, provider.ErrUpstreamUnavailable)
	}

	var body struct {
		Prices       [][2]float64 `json:"prices"`
		TotalVolumes [][2]float64 `json:"total_volumes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("coingecko: decode: %v: %w", err, provider.ErrMalformedResponse)
	}
	return bucket(asset, rng, body.Prices, body.TotalVolumes), nil
}

// bucket folds raw (timestamp, price) points into OHLC bars at the range's
// resolution. Volume per bar is the last rolling-volume point in the bucket.
func bucket(asset schema.AssetIdentifier, rng schema.TimeRange, prices, volumes [][2]float64) []schema.Bar {
	step := rng.Resolution.Duration()
	byBucket := make(map[int64]*schema.Bar)
	var order []int64
	for _, p := range prices {
		ts := time.UnixMilli(int64(p[0])).UTC()
		if !rng.Contains(ts) {
			continue
		}
		bucketStart := ts.Truncate(step)
		if bucketStart.Before(rng.Start) {
			// range opened mid-bucket; a bar here would carry a timestamp
			// outside the requested interval
			continue
		}
		slot := bucketStart.Unix()
		price := schema.RoundPrice(p[1])
		b, ok := byBucket[slot]
		if !ok {
			byBucket[slot] = &schema.Bar{
				Asset:     asset,
				Timestamp: time.Unix(slot, 0).UTC(),
				Open:      price,
				High:      price,
				Low:       price,
				Close:     price,
			}
			order = append(order, slot)
			continue
		}
		if price > b.High {
			b.High = price
		}
		if price < b.Low {
			b.Low = price
		}
		b.Close = price
	}
	for _, v := range volumes {
		ts := time.UnixMilli(int64(v[0])).UTC()
		if !rng.Contains(ts) {
			continue
		}
		if b, ok := byBucket[ts.Truncate(step).Unix()]; ok {
			b.Volume = v[1]
		}
	}
	bars := make([]schema.Bar, 0, len(order))
	for _, slot := range order {
		bars = append(bars, *byBucket[slot])
	}
	return bars
}
