package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"marketdata/internal/router"
	"marketdata/internal/schema"
)

// barsGetter is the slice of the facade the handler needs.
type barsGetter interface {
	GetBars(ctx context.Context, req schema.FetchRequest, opts router.Options) (schema.FetchResult, error)
}

func handleGetBars(w http.ResponseWriter, r *http.Request, svc barsGetter) {
	q := r.URL.Query()

	class, err := schema.ParseAssetClass(q.Get("class"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resolution, err := schema.ParseResolution(q.Get("resolution"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := parseTime(q.Get("start"))
	if err != nil {
		http.Error(w, "invalid start: "+err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		http.Error(w, "invalid end: "+err.Error(), http.StatusBadRequest)
		return
	}

	req := schema.FetchRequest{
		Asset: schema.AssetIdentifier{Symbol: strings.TrimSpace(q.Get("symbol")), Class: class},
		Range: schema.TimeRange{Start: start, End: end, Resolution: resolution},
	}
	opts := router.Options{
		Provider:   strings.TrimSpace(q.Get("provider")),
		PreferPaid: q.Get("prefer_paid") == "true" || q.Get("prefer_paid") == "1",
	}

	result, err := svc.GetBars(r.Context(), req, opts)
	switch {
	case err == nil:
	case errors.Is(err, schema.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, router.ErrNoProviderAvailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	default:
		log.Printf("bars: %s: %v", req.Asset, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("bars: encode: %v", err)
	}
}

// parseTime accepts RFC3339 or a bare date.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic: %v", rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
