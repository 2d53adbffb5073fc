// Package pricefeed polls an upstream market-data API for the BTC/USD spot
// price and the trailing 24h series, caches the latest snapshot, and fans
// updates out to websocket subscribers.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"btcpaper/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Quote struct {
	Symbol    string          `json:"symbol"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	Change24h decimal.Decimal `json:"change_24h"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type SeriesPoint struct {
	Timestamp int64           `json:"timestamp"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
}

type Service struct {
	baseURL        string
	client         *http.Client
	log            *zap.Logger
	bus            *Bus
	pollInterval   time.Duration
	seriesInterval time.Duration

	mu     sync.RWMutex
	quote  Quote
	series []SeriesPoint
}

func NewService(baseURL string, pollInterval, seriesInterval time.Duration, bus *Bus, log *zap.Logger) *Service {
	return &Service{
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 10 * time.Second},
		log:            log,
		bus:            bus,
		pollInterval:   pollInterval,
		seriesInterval: seriesInterval,
	}
}

// Start launches the spot and series pollers. Both stop when ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) {
	go s.pollLoop(ctx, s.pollInterval, "spot", s.refreshQuote)
	go s.pollLoop(ctx, s.seriesInterval, "series", s.refreshSeries)
}

func (s *Service) pollLoop(ctx context.Context, interval time.Duration, kind string, refresh func(context.Context) error) {
	tick := func() {
		err := refresh(ctx)
		metrics.PriceFeedPollsTotal.WithLabelValues(kind, metrics.OutcomeFor(err)).Inc()
		if err != nil {
			s.log.Warn("price feed poll failed", zap.String("kind", kind), zap.Error(err))
		}
	}
	tick()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}

type simplePriceResponse struct {
	Bitcoin struct {
		USD          json.Number `json:"usd"`
		USD24hChange json.Number `json:"usd_24h_change"`
	} `json:"bitcoin"`
}

func (s *Service) refreshQuote(ctx context.Context) error {
	url := s.baseURL + "/simple/price?ids=bitcoin&vs_currencies=usd&include_24hr_change=true"
	var resp simplePriceResponse
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return err
	}
	price, err := decimal.NewFromString(resp.Bitcoin.USD.String())
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}
	change, err := decimal.NewFromString(resp.Bitcoin.USD24hChange.String())
	if err != nil {
		change = decimal.Zero
	}
	q := Quote{
		Symbol:    "BTC-USD",
		PriceUSD:  price,
		Change24h: change,
		UpdatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.quote = q
	s.mu.Unlock()
	s.bus.Publish(q)
	return nil
}

type marketChartResponse struct {
	Prices [][2]json.Number `json:"prices"`
}

func (s *Service) refreshSeries(ctx context.Context) error {
	url := s.baseURL + "/coins/bitcoin/market_chart?vs_currency=usd&days=1"
	var resp marketChartResponse
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return err
	}
	points := make([]SeriesPoint, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		ts, err := p[0].Int64()
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(p[1].String())
		if err != nil {
			continue
		}
		points = append(points, SeriesPoint{Timestamp: ts, PriceUSD: price})
	}
	s.mu.Lock()
	s.series = points
	s.mu.Unlock()
	return nil
}

func (s *Service) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// Quote returns the last polled spot quote. The zero Quote means no poll has
// succeeded yet.
func (s *Service) Quote() Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quote
}

// Series returns the cached 24h price series.
func (s *Service) Series() []SeriesPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SeriesPoint, len(s.series))
	copy(out, s.series)
	return out
}
