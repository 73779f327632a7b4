package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	FetchTimeoutSec   int    `json:"fetch_timeout_sec"`
}

type Cache struct {
	MaxEntries       int    `json:"max_entries"`
	IntradayTTLSec   int    `json:"intraday_ttl_sec"`
	HistoricalTTLSec int    `json:"historical_ttl_sec"` // 0 = keep forever
	SweepIntervalSec int    `json:"sweep_interval_sec"`
	SQLitePath       string `json:"sqlite_path"` // empty = memory only
	SQLiteMaxRows    int    `json:"sqlite_max_rows"`
}

// Provider is one upstream's static configuration. Credentials arrive as
// already-resolved strings; nothing here parses credential files.
type Provider struct {
	Enabled         bool              `json:"enabled"`
	ID              string            `json:"id"`
	APIKey          string            `json:"api_key"`
	Endpoint        string            `json:"endpoint"`
	RateLimitCount  int               `json:"rate_limit_count"`
	RateLimitWindow int               `json:"rate_limit_window_sec"`
	Priority        int               `json:"priority"`
	SymbolMap       map[string]string `json:"symbol_map"`
}

type Config struct {
	Server    Server   `json:"server"`
	Cache     Cache    `json:"cache"`
	Yahoo     Provider `json:"yahoo"`
	CoinGecko Provider `json:"coingecko"`
	Polygon   Provider `json:"polygon"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 20, FetchTimeoutSec: 10},
		Cache: Cache{
			MaxEntries:       4096,
			IntradayTTLSec:   300,
			HistoricalTTLSec: 0,
			SweepIntervalSec: 60,
			SQLiteMaxRows:    100000,
		},
		Yahoo: Provider{
			Enabled:         true,
			ID:              "yahoo",
			RateLimitCount:  60,
			RateLimitWindow: 60,
			Priority:        0,
		},
		CoinGecko: Provider{
			Enabled:         true,
			ID:              "coingecko",
			RateLimitCount:  8,
			RateLimitWindow: 60,
			Priority:        1,
		},
		Polygon: Provider{
			Enabled:         false,
			ID:              "polygon",
			RateLimitCount:  5,
			RateLimitWindow: 60,
			Priority:        2,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("FETCH_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.FetchTimeoutSec = x
		}
	}
	if v := os.Getenv("CACHE_SQLITE_PATH"); v != "" {
		cfg.Cache.SQLitePath = v
	}
	if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Cache.MaxEntries = x
		}
	}
	if v := os.Getenv("CACHE_INTRADAY_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Cache.IntradayTTLSec = x
		}
	}
	applyProviderEnv(&cfg.Yahoo, "YAHOO")
	applyProviderEnv(&cfg.CoinGecko, "COINGECKO")
	applyProviderEnv(&cfg.Polygon, "POLYGON")
}

func applyProviderEnv(p *Provider, prefix string) {
	if v := os.Getenv(prefix + "_ENABLED"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			p.Enabled = true
		case "0", "false", "no", "n":
			p.Enabled = false
		}
	}
	if v := os.Getenv(prefix + "_API_KEY"); v != "" {
		p.APIKey = v
	}
	if v := os.Getenv(prefix + "_ENDPOINT"); v != "" {
		p.Endpoint = v
	}
	if v := os.Getenv(prefix + "_RATE_LIMIT"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			p.RateLimitCount = x
		}
	}
	if v := os.Getenv(prefix + "_RATE_WINDOW_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			p.RateLimitWindow = x
		}
	}
	if v := os.Getenv(prefix + "_PRIORITY"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			p.Priority = x
		}
	}
}
