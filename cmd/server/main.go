package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

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
	"marketdata/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Polygon.Enabled && cfg.Polygon.APIKey == "" {
		log.Println("warning: polygon.enabled=true but POLYGON_API_KEY not set; skipping")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}
	defer cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/bars", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleGetBars(w, r, svc)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(recoverPanic(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.RequestTimeoutSec+5) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildService(ctx context.Context, cfg config.Config) (*service.Service, func(), error) {
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
		mem := cache.NewMemory(cfg.Cache.MaxEntries)
		if cfg.Cache.SweepIntervalSec > 0 {
			mem.StartSweeper(ctx, time.Duration(cfg.Cache.SweepIntervalSec)*time.Second)
		}
		store = mem
	}

	tracker := quota.NewTracker()
	r := router.New(router.Config{
		Quota: tracker,
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
		client := polygonio.NewClient(cfg.Polygon.APIKey, opts...)
		r.Register(polygonio.NewAdapter(polygonio.Config{
			Descriptor: descriptor(cfg.Polygon),
			SymbolMap:  cfg.Polygon.SymbolMap,
		}, client))
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
