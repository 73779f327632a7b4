package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/parquet-go/parquet-go"

	"marketdata/internal/cache"
	"marketdata/internal/cache/sqlitestore"
	"marketdata/internal/config"
	"marketdata/internal/httpx"
	"marketdata/internal/provider"
	"marketdata/internal/provider/coingecko"
	"marketdata/internal/provider/polygonio"
	"marketdata/internal/provider/yahoo"
	"marketdata/internal/quota"
	"marketdata/internal/router"
	"marketdata/internal/schema"
	"marketdata/internal/service"
)

func main() {
	_ = godotenv.Load()

	var symbol, class, resolution, start, end string
	var providerID, format, out, configPath string
	var preferPaid bool
	var timeout int

	flag.StringVar(&symbol, "symbol", getenv("SYMBOL", "AAPL"), "canonical symbol")
	flag.StringVar(&class, "class", getenv("CLASS", "equity"), "asset class (equity|etf|crypto)")
	flag.StringVar(&resolution, "resolution", getenv("RESOLUTION", "1d"), "bar resolution (1m|5m|1h|1d)")
	flag.StringVar(&start, "start", "", "range start (RFC3339 or YYYY-MM-DD)")
	flag.StringVar(&end, "end", "", "range end, exclusive (RFC3339 or YYYY-MM-DD)")
	flag.StringVar(&providerID, "provider", "", "pin to one provider id")
	flag.BoolVar(&preferPaid, "prefer-paid", false, "try paid-tier providers first")
	flag.StringVar(&format, "format", "json", "output format (json|parquet)")
	flag.StringVar(&out, "out", "", "output path (parquet requires one; json defaults to stdout)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 20), "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	startT, err := parseTime(start)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	endT, err := parseTime(end)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
	defer cancel()

	svc, cleanup, err := buildService(cfg)
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}
	defer cleanup()

	req := schema.FetchRequest{
		Asset: schema.AssetIdentifier{Symbol: symbol, Class: schema.AssetClass(strings.ToLower(class))},
		Range: schema.TimeRange{Start: startT, End: endT, Resolution: schema.Resolution(resolution)},
	}
	result, err := svc.GetBars(ctx, req, router.Options{Provider: providerID, PreferPaid: preferPaid})
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	log.Printf("fetched %d bars from %s (cache=%v)", len(result.Series), result.SourceProviderID, result.ServedFromCache)

	switch strings.ToLower(format) {
	case "json":
		if err := writeJSON(result, out); err != nil {
			log.Fatalf("write: %v", err)
		}
	case "parquet":
		if out == "" {
			log.Fatal("parquet output requires -out")
		}
		if err := writeParquet(result.Series, out); err != nil {
			log.Fatalf("write: %v", err)
		}
	default:
		log.Fatalf("unknown format %q (json|parquet)", format)
	}
}

func writeJSON(result schema.FetchResult, out string) error {
	f := os.Stdout
	if out != "" {
		var err error
		f, err = os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// barRow is the flat DTO written to parquet files.
type barRow struct {
	Symbol    string  `parquet:"symbol"`
	Class     string  `parquet:"class"`
	Timestamp int64   `parquet:"t"` // ms since epoch
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    float64 `parquet:"v"`
}

func writeParquet(series []schema.Bar, path string) error {
	rows := make([]barRow, len(series))
	for i, b := range series {
		rows[i] = barRow{
			Symbol:    b.Asset.Symbol,
			Class:     string(b.Asset.Class),
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}

func buildService(cfg config.Config) (*service.Service, func(), error) {
	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	var store cache.Store
	cleanup := func() {}
	if cfg.Cache.SQLitePath != "" {
		s, err := sqlitestore.Open(cfg.Cache.SQLitePath, cfg.Cache.SQLiteMaxRows)
		if err != nil {
			return nil, nil, err
		}
		store = s
		cleanup = func() { _ = s.Close() }
	} else {
		store = cache.NewMemory(cfg.Cache.MaxEntries)
	}

	r := router.New(router.Config{
		Quota: quota.NewTracker(),
		Store: store,
		TTL: cache.TTLPolicy{
			Intraday:   time.Duration(cfg.Cache.IntradayTTLSec) * time.Second,
			Historical: time.Duration(cfg.Cache.HistoricalTTLSec) * time.Second,
		},
		FetchTimeout: time.Duration(cfg.Server.FetchTimeoutSec) * time.Second,
	})

	if cfg.Yahoo.Enabled {
		r.Register(yahoo.New(yahoo.Config{
			Descriptor: descriptor(cfg.Yahoo),
			BaseURL:    cfg.Yahoo.Endpoint,
			SymbolMap:  cfg.Yahoo.SymbolMap,
		}, httpClient))
	}
	if cfg.CoinGecko.Enabled {
		r.Register(coingecko.New(coingecko.Config{
			Descriptor: descriptor(cfg.CoinGecko),
			BaseURL:    cfg.CoinGecko.Endpoint,
			APIKey:     cfg.CoinGecko.APIKey,
			SymbolMap:  cfg.CoinGecko.SymbolMap,
		}, httpClient))
	}
	if cfg.Polygon.Enabled && cfg.Polygon.APIKey != "" {
		opts := []polygonio.ClientOption{polygonio.WithHTTPClient(httpClient.HTTP)}
		if cfg.Polygon.Endpoint != "" {
			opts = append(opts, polygonio.WithBaseURL(cfg.Polygon.Endpoint))
		}
		r.Register(polygonio.NewAdapter(polygonio.Config{
			Descriptor: descriptor(cfg.Polygon),
			SymbolMap:  cfg.Polygon.SymbolMap,
		}, polygonio.NewClient(cfg.Polygon.APIKey, opts...)))
	}

	return service.New(r), cleanup, nil
}

func descriptor(p config.Provider) provider.Descriptor {
	return provider.Descriptor{
		ID: p.ID,
		RateLimit: provider.RateLimit{
			Count:  p.RateLimitCount,
			Window: time.Duration(p.RateLimitWindow) * time.Second,
		},
		Priority: p.Priority,
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err == nil {
			return x
		}
	}
	return def
}
