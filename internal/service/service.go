package service

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"marketdata/internal/router"
	"marketdata/internal/schema"
)

// Service is the single entry point consumers call. It validates requests
// before any provider is contacted and coalesces concurrent identical
// requests into one in-flight resolution so duplicate paid calls never
// happen.
type Service struct {
	router *router.Router
	group  singleflight.Group
}

func New(r *router.Router) *Service {
	return &Service{router: r}
}

// GetBars resolves one request. Concurrent callers asking for the same
// (asset, range) share a single fetch; every caller can still cancel
// independently through its own context.
func (s *Service) GetBars(ctx context.Context, req schema.FetchRequest, opts router.Options) (schema.FetchResult, error) {
	if err := req.Validate(); err != nil {
		return schema.FetchResult{}, err
	}
	// The shared resolution must not die with whichever caller started it,
	// so it runs detached from any single caller's context. The router's
	// fetch timeout still bounds the work.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(req.Key(), func() (any, error) {
		return s.router.Resolve(fetchCtx, req, opts)
	})
	select {
	case <-ctx.Done():
		return schema.FetchResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return schema.FetchResult{}, res.Err
		}
		return res.Val.(schema.FetchResult), nil
	}
}

// Warm prefetches a set of ranges with bounded concurrency, priming the
// cache for later synchronous reads. Individual failures are logged and the
// first one is returned after all requests settle.
func (s *Service) Warm(ctx context.Context, reqs []schema.FetchRequest, opts router.Options, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}
	var g errgroup.Group
	g.SetLimit(concurrency)
	var firstErr error
	var mu sync.Mutex
	for _, req := range reqs {
		g.Go(func() error {
			if _, err := s.GetBars(ctx, req, opts); err != nil {
				log.Printf("service: warm %s: %v", req.Asset, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return firstErr
}
