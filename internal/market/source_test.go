package market

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"prediction-engine/internal/config"
	"prediction-engine/internal/obs"
	"prediction-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.MarketConfig{BaseURL: srv.URL, MaxPages: 5, PageLimit: 2}
	c := NewClient(cfg, time.Minute, obs.NewMetrics(testLogger()), testLogger())
	return c, srv
}

func TestFetchPaginatesAndNormalizes(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var page []rawMarket
		if n == 1 {
			page = []rawMarket{
				{ID: "m1", Question: "Q1?", Category: "crypto", VolumeUSD: f(120000), LiquidityUSD: f(30000), Probability: f(0.55), PriceChange24h: f(0.04)},
				{ID: "", Question: "bad", VolumeUSD: f(1), Probability: f(0.5)}, // dropped: no id
			}
		} else {
			page = []rawMarket{
				{ID: "m2", Question: "Q2?", Category: "weird-cat", VolumeUSD: f(90000), Probability: f(1.7), Status: "resolved"},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	})

	got := c.FetchAllMarkets(context.Background())
	if len(got) != 2 {
		t.Fatalf("markets = %d, want 2 (one reject)", len(got))
	}
	if got[0].Category != types.CategoryCrypto {
		t.Errorf("category = %s, want Crypto", got[0].Category)
	}
	if got[1].Category != types.CategoryOther {
		t.Errorf("unmapped category = %s, want Other", got[1].Category)
	}
	if got[1].Probability != 1 {
		t.Errorf("probability not clamped: %v", got[1].Probability)
	}
	if got[1].Status != types.MarketResolved {
		t.Errorf("status = %s, want RESOLVED", got[1].Status)
	}
}

func TestFreshWindowReturnsCachedIdentity(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]rawMarket{
			{ID: "m1", Question: "Q?", VolumeUSD: f(1000), Probability: f(0.5)},
		})
	})

	first := c.FetchAllMarkets(context.Background())
	second := c.FetchAllMarkets(context.Background())

	if calls.Load() != 1 {
		t.Errorf("upstream called %d times within the fresh window, want 1", calls.Load())
	}
	if &first[0] != &second[0] {
		t.Error("cached call must return the same slice by identity")
	}
}

func TestUpstreamFailureServesStaleCache(t *testing.T) {
	t.Parallel()
	var fail atomic.Bool
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]rawMarket{
			{ID: "m1", Question: "Q?", VolumeUSD: f(1000), Probability: f(0.5)},
		})
	})

	first := c.FetchAllMarkets(context.Background())
	if len(first) != 1 {
		t.Fatalf("seed fetch failed: %d markets", len(first))
	}

	fail.Store(true)
	c.Invalidate()

	stale := c.FetchAllMarkets(context.Background())
	if len(stale) != 0 {
		t.Fatalf("Invalidate dropped the cache; expected empty, got %d", len(stale))
	}
}

func TestUpstreamFailureStaleWindowExpired(t *testing.T) {
	t.Parallel()
	var fail atomic.Bool
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]rawMarket{
			{ID: "m1", Question: "Q?", VolumeUSD: f(1000), Probability: f(0.5)},
		})
	})

	c.FetchAllMarkets(context.Background())

	// Age the cache past the TTL, then break the upstream: the stale list
	// must still be served.
	fail.Store(true)
	c.mu.Lock()
	c.fetchedAt = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()

	got := c.FetchAllMarkets(context.Background())
	if len(got) != 1 {
		t.Fatalf("stale cache not served on failure: %d markets", len(got))
	}
}

func TestFailureWithNoCacheReturnsEmpty(t *testing.T) {
	t.Parallel()
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	got := c.FetchAllMarkets(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil list, got %v", got)
	}
}

func TestMapCategory(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want types.Category
	}{
		{"crypto", types.CategoryCrypto},
		{"  Politics ", types.CategoryPolitics},
		{"NBA", types.CategorySports},
		{"ai", types.CategoryTech},
		{"finance", types.CategoryEconomy},
		{"climate", types.CategoryScience},
		{"pop-culture", types.CategoryEntertainment},
		{"underwater-basket-weaving", types.CategoryOther},
		{"", types.CategoryOther},
	}
	for _, tc := range cases {
		if got := MapCategory(tc.raw); got != tc.want {
			t.Errorf("MapCategory(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestSimulatorDeterministic(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewSimulator()
	a.now = func() time.Time { return fixed }
	b := NewSimulator()
	b.now = func() time.Time { return fixed }

	ma := a.FetchAllMarkets(context.Background())
	mb := b.FetchAllMarkets(context.Background())

	if len(ma) == 0 || len(ma) != len(mb) {
		t.Fatalf("simulator sets differ in size: %d vs %d", len(ma), len(mb))
	}
	for i := range ma {
		if ma[i] != mb[i] {
			t.Errorf("market %d differs between identical runs", i)
		}
	}
	for _, m := range ma {
		if m.Probability < 0 || m.Probability > 1 {
			t.Errorf("%s probability out of range: %v", m.ID, m.Probability)
		}
	}
}
