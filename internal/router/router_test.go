package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketdata/internal/cache"
	"marketdata/internal/provider"
	"marketdata/internal/quota"
	"marketdata/internal/router"
	"marketdata/internal/schema"
)

func testRequest() schema.FetchRequest {
	return schema.FetchRequest{
		Asset: schema.AssetIdentifier{Symbol: "AAPL", Class: schema.ClassEquity},
		Range: schema.TimeRange{
			Start:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			End:        time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Resolution: schema.Res1d,
		},
	}
}

func testBars() []schema.Bar {
	return []schema.Bar{{
		Asset:     schema.AssetIdentifier{Symbol: "AAPL", Class: schema.ClassEquity},
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:      185.0, High: 186.2, Low: 184.5, Close: 185.9, Volume: 50_000_000,
	}}
}

func descriptor(id string, tier provider.Tier, priority, limit int) provider.Descriptor {
	return provider.Descriptor{
		ID:               id,
		SupportedClasses: []schema.AssetClass{schema.ClassEquity, schema.ClassCrypto},
		Tier:             tier,
		RateLimit:        provider.RateLimit{Count: limit, Window: time.Minute},
		Priority:         priority,
	}
}

func mockAdapter(ctrl *gomock.Controller, d provider.Descriptor) *MockAdapter {
	a := NewMockAdapter(ctrl)
	a.EXPECT().Describe().Return(d).AnyTimes()
	return a
}

func newRouter(tr *quota.Tracker, store cache.Store, adapters ...provider.Adapter) *router.Router {
	r := router.New(router.Config{
		Quota:        tr,
		Store:        store,
		TTL:          cache.DefaultTTLPolicy(),
		FetchTimeout: time.Second,
	})
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func TestResolve_FetchesAndCaches(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	a.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	tr := quota.NewTracker()
	store := cache.NewMemory(10)
	r := newRouter(tr, store, a)

	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.Equal(t, "alpha", res.SourceProviderID)
	require.False(t, res.ServedFromCache)
	require.Equal(t, testBars(), res.Series)

	// the fetched series must now be in the cache under the winning provider
	_, ok, err := store.Get(ctx, cache.Key{Asset: req.Asset, Range: req.Range, ProviderID: "alpha"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 9, tr.Remaining("alpha"))
}

func TestResolve_CacheHitSkipsFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	// no FetchBars expectation: touching the adapter fails the test
	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))

	tr := quota.NewTracker()
	store := cache.NewMemory(10)
	key := cache.Key{Asset: req.Asset, Range: req.Range, ProviderID: "alpha"}
	require.NoError(t, store.Put(ctx, key, cache.Entry{Bars: testBars(), FetchedAt: time.Now(), TTL: time.Hour}))

	r := newRouter(tr, store, a)
	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.True(t, res.ServedFromCache)
	require.Equal(t, "alpha", res.SourceProviderID)
	require.Equal(t, 10, tr.Remaining("alpha"), "a cache hit must not burn quota")
}

func TestResolve_FailoverOnUpstreamError(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	a.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(nil, provider.ErrUpstreamUnavailable)
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))
	b.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	tr := quota.NewTracker()
	r := newRouter(tr, cache.NewMemory(10), a, b)

	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.Equal(t, "beta", res.SourceProviderID)
	require.Equal(t, 10, tr.Remaining("alpha"), "failed attempt must release its reservation")
	require.Equal(t, 9, tr.Remaining("beta"))
}

func TestResolve_FailoverOnExhaustedQuota(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 1))
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))
	b.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	tr := quota.NewTracker()
	r := newRouter(tr, cache.NewMemory(10), a, b)
	// spend alpha's single slot so only beta can be reserved
	require.NoError(t, tr.TryReserve("alpha"))

	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.Equal(t, "beta", res.SourceProviderID)
}

func TestResolve_FailoverOnInvalidSeries(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	bad := testBars()
	bad[0].High = bad[0].Low - 1

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	a.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(bad, nil)
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))
	b.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	r := newRouter(quota.NewTracker(), cache.NewMemory(10), a, b)
	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.Equal(t, "beta", res.SourceProviderID, "a series failing validation must trigger failover")
}

func TestResolve_FailoverOnBadCredential(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	a.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(nil, provider.ErrUnauthenticated)
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))
	b.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	r := newRouter(quota.NewTracker(), cache.NewMemory(10), a, b)
	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.Equal(t, "beta", res.SourceProviderID)
}

func TestResolve_AllCandidatesFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	a.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(nil, provider.ErrUpstreamUnavailable)
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))
	b.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(nil, provider.ErrUpstreamUnavailable)

	r := newRouter(quota.NewTracker(), cache.NewMemory(10), a, b)
	_, err := r.Resolve(ctx, req, router.Options{})
	require.ErrorIs(t, err, router.ErrNoProviderAvailable)
	require.ErrorIs(t, err, provider.ErrUpstreamUnavailable)
}

func TestResolve_NoProviderSupportsClass(t *testing.T) {
	ctrl := gomock.NewController(t)
	req := testRequest()
	req.Asset.Class = schema.ClassETF

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	r := newRouter(quota.NewTracker(), cache.NewMemory(10), a)
	_, err := r.Resolve(context.Background(), req, router.Options{})
	require.ErrorIs(t, err, router.ErrNoProviderAvailable)
}

func TestResolve_PinnedProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))
	b.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	r := newRouter(quota.NewTracker(), cache.NewMemory(10), a, b)
	res, err := r.Resolve(ctx, req, router.Options{Provider: "beta"})
	require.NoError(t, err)
	require.Equal(t, "beta", res.SourceProviderID)
}

func TestResolve_PinnedProviderDoesNotFailOver(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	a.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(nil, provider.ErrUpstreamUnavailable)
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))

	r := newRouter(quota.NewTracker(), cache.NewMemory(10), a, b)
	_, err := r.Resolve(ctx, req, router.Options{Provider: "alpha"})
	require.ErrorIs(t, err, router.ErrNoProviderAvailable)
}

func TestResolve_PreferPaidFlipsTierOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	free := mockAdapter(ctrl, descriptor("free", provider.TierFree, 0, 10))
	paid := mockAdapter(ctrl, descriptor("paid", provider.TierPaid, 0, 10))
	paid.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	r := newRouter(quota.NewTracker(), cache.NewMemory(10), free, paid)
	res, err := r.Resolve(ctx, req, router.Options{PreferPaid: true})
	require.NoError(t, err)
	require.Equal(t, "paid", res.SourceProviderID)
}

func TestResolve_FreeTierWinsByDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	free := mockAdapter(ctrl, descriptor("free", provider.TierFree, 5, 10))
	free.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)
	// paid carries a better priority rank but still sorts after the free tier
	paid := mockAdapter(ctrl, descriptor("paid", provider.TierPaid, 0, 10))

	r := newRouter(quota.NewTracker(), cache.NewMemory(10), free, paid)
	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.Equal(t, "free", res.SourceProviderID)
}

func TestResolve_TieBreaksOnRemainingQuota(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 0, 10))
	b.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).Return(testBars(), nil)

	tr := quota.NewTracker()
	r := newRouter(tr, cache.NewMemory(10), a, b)

	// drain alpha a bit so beta holds more headroom
	require.NoError(t, tr.TryReserve("alpha"))
	require.NoError(t, tr.TryReserve("alpha"))

	res, err := r.Resolve(ctx, req, router.Options{})
	require.NoError(t, err)
	require.Equal(t, "beta", res.SourceProviderID)
}

func TestResolve_CallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	req := testRequest()

	a := mockAdapter(ctrl, descriptor("alpha", provider.TierFree, 0, 10))
	a.EXPECT().FetchBars(gomock.Any(), req.Asset, req.Range).DoAndReturn(
		func(ctx context.Context, _ schema.AssetIdentifier, _ schema.TimeRange) ([]schema.Bar, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	b := mockAdapter(ctrl, descriptor("beta", provider.TierFree, 1, 10))

	ctx, cancel := context.WithCancel(context.Background())
	tr := quota.NewTracker()
	r := newRouter(tr, cache.NewMemory(10), a, b)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Resolve(ctx, req, router.Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 10, tr.Remaining("alpha"), "cancelled attempt must release its reservation")
}
