package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000.5,"usd_24h_change":-1.25}}`))
	})
	mux.HandleFunc("/coins/bitcoin/market_chart", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices":[[1700000000000,49000.1],[1700000060000,49100.2]]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshQuote(t *testing.T) {
	upstream := newUpstream(t)
	svc := NewService(upstream.URL, time.Minute, time.Minute, NewBus(), zap.NewNop())

	require.NoError(t, svc.refreshQuote(context.Background()))

	q := svc.Quote()
	assert.Equal(t, "BTC-USD", q.Symbol)
	assert.True(t, q.PriceUSD.Equal(decimal.RequireFromString("50000.5")), "price: got %s", q.PriceUSD)
	assert.True(t, q.Change24h.Equal(decimal.RequireFromString("-1.25")), "change: got %s", q.Change24h)
	assert.False(t, q.UpdatedAt.IsZero())
}

func TestRefreshSeries(t *testing.T) {
	upstream := newUpstream(t)
	svc := NewService(upstream.URL, time.Minute, time.Minute, NewBus(), zap.NewNop())

	require.NoError(t, svc.refreshSeries(context.Background()))

	points := svc.Series()
	require.Len(t, points, 2)
	assert.Equal(t, int64(1700000000000), points[0].Timestamp)
	assert.True(t, points[0].PriceUSD.Equal(decimal.RequireFromString("49000.1")))
}

func TestRefreshQuotePropagatesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	svc := NewService(srv.URL, time.Minute, time.Minute, NewBus(), zap.NewNop())

	err := svc.refreshQuote(context.Background())
	assert.Error(t, err)
	assert.True(t, svc.Quote().UpdatedAt.IsZero(), "failed poll must not overwrite the cache")
}

func TestBusPublishesQuoteUpdates(t *testing.T) {
	upstream := newUpstream(t)
	bus := NewBus()
	svc := NewService(upstream.URL, time.Minute, time.Minute, bus, zap.NewNop())

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	require.NoError(t, svc.refreshQuote(context.Background()))

	select {
	case q := <-ch:
		assert.Equal(t, "BTC-USD", q.Symbol)
		assert.True(t, q.PriceUSD.Equal(decimal.RequireFromString("50000.5")))
	default:
		t.Fatal("expected a quote on the bus")
	}
}

func TestBusDropsTicksForLaggingSubscriber(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	// publish past the buffer; the publisher must never block
	for i := 0; i < 40; i++ {
		bus.Publish(Quote{Symbol: "BTC-USD", PriceUSD: decimal.NewFromInt(int64(i))})
	}
	assert.Equal(t, 16, len(ch), "overflowing ticks are dropped, not queued")
}
