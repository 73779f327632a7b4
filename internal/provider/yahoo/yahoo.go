package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
	"marketdata/internal/schema"
)

// Config controls the Yahoo chart adapter.
type Config struct {
	Descriptor provider.Descriptor
	BaseURL    string
	// SymbolMap overrides canonical-to-upstream symbol spellings.
	// Crypto symbols default to the "<SYM>-USD" pair when unmapped.
	SymbolMap map[string]string
}

// Adapter fetches bars from the Yahoo v8 chart endpoint. Free tier, all
// three asset classes, daily history plus recent intraday.
type Adapter struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Adapter {
	if cfg.Descriptor.ID == "" {
		cfg.Descriptor.ID = "yahoo"
	}
	if cfg.Descriptor.Tier == "" {
		cfg.Descriptor.Tier = provider.TierFree
	}
	if len(cfg.Descriptor.SupportedClasses) == 0 {
		cfg.Descriptor.SupportedClasses = []schema.AssetClass{
			schema.ClassEquity, schema.ClassETF, schema.ClassCrypto,
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	return &Adapter{cfg: cfg, client: hc}
}

func (a *Adapter) Describe() provider.Descriptor { return a.cfg.Descriptor }

func (a *Adapter) FetchBars(ctx context.Context, asset schema.AssetIdentifier, rng schema.TimeRange) ([]schema.Bar, error) {
	interval, ok := intervals[rng.Resolution]
	if !ok {
		return nil, fmt.Errorf("yahoo: resolution %s: %w", rng.Resolution, provider.ErrUnsupportedAsset)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s", a.cfg.BaseURL, url.PathEscape(a.symbol(asset)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("yahoo: build request: %w", err)
	}
	q := req.URL.Query()
	q.Set("period1", strconv.FormatInt(rng.Start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(rng.End.Unix(), 10))
	q.Set("interval", interval)
	q.Set("events", "history")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("yahoo: %v: %w", err, provider.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("yahoo: status %d: %w", resp.StatusCode, provider.ErrUnauthenticated)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("yahoo: status %d: %w", resp.StatusCode, provider.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("yahoo: %s not found: %w", asset, provider.ErrUnsupportedAsset)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("yahoo: status %d: %w", resp.StatusCode, provider.ErrUpstreamUnavailable)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("yahoo: decode: %v: %w", err, provider.ErrMalformedResponse)
	}
	if body.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo: chart error %q: %w", body.Chart.Error.Code, provider.ErrUnsupportedAsset)
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: empty chart result: %w", provider.ErrMalformedResponse)
	}

	res := body.Chart.Result[0]
	quote := res.Indicators.Quote[0]
	n := len(res.Timestamp)
	if len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n ||
		len(quote.Close) != n || len(quote.Volume) != n {
		return nil, fmt.Errorf("yahoo: ragged quote arrays: %w", provider.ErrMalformedResponse)
	}

	bars := make([]schema.Bar, 0, n)
	for i := range n {
		ts := time.Unix(res.Timestamp[i], 0).UTC()
		if !rng.Contains(ts) {
			continue
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			// Yahoo pads holiday/halted slots with nulls.
			continue
		}
		var vol float64
		if quote.Volume[i] != nil {
			vol = *quote.Volume[i]
		}
		bars = append(bars, schema.Bar{
			Asset:     asset,
			Timestamp: ts,
			Open:      schema.RoundPrice(*quote.Open[i]),
			High:      schema.RoundPrice(*quote.High[i]),
			Low:       schema.RoundPrice(*quote.Low[i]),
			Close:     schema.RoundPrice(*quote.Close[i]),
			Volume:    vol,
		})
	}
	return bars, nil
}

func (a *Adapter) symbol(asset schema.AssetIdentifier) string {
	if v := a.cfg.SymbolMap[asset.Symbol]; v != "" {
		return v
	}
	if asset.Class == schema.ClassCrypto {
		return asset.Symbol + "-USD"
	}
	return asset.Symbol
}

var intervals = map[schema.Resolution]string{
	schema.Res1m: "1m",
	schema.Res5m: "5m",
	schema.Res1h: "60m",
	schema.Res1d: "1d",
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}
