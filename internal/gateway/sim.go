package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/types"
)

// SimGateway is a simulated broker used by cmd/simulation and tests.
// It models latency, transient failures and partial fills so the retry
// and reconciliation paths get exercised without a live broker.
type SimGateway struct {
	mu sync.Mutex

	MinLatency  time.Duration
	MaxLatency  time.Duration
	SuccessRate float64 // probability a submit is accepted
	FillRate    float64 // probability an accepted submit fills in full

	cancelled map[string]bool
}

// NewSimGateway returns a gateway that always accepts and fully fills.
// Tune the rates to inject failures.
func NewSimGateway() *SimGateway {
	return &SimGateway{
		MinLatency:  2 * time.Millisecond,
		MaxLatency:  10 * time.Millisecond,
		SuccessRate: 1.0,
		FillRate:    1.0,
		cancelled:   make(map[string]bool),
	}
}

func (g *SimGateway) Submit(ctx context.Context, symbol string, side types.Side, qty int64, price float64, orderType types.OrderType) (*SubmitResult, error) {
	logger := log.With().
		Str("component", "sim_gateway").
		Str("symbol", symbol).
		Str("side", string(side)).
		Int64("quantity", qty).
		Float64("price", price).
		Logger()

	if g.MaxLatency > g.MinLatency {
		latency := g.MinLatency + time.Duration(rand.Int63n(int64(g.MaxLatency-g.MinLatency)))
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, types.NewTransientGatewayError(ctx.Err())
		}
	}

	if rand.Float64() > g.SuccessRate {
		logger.Warn().Msg("simulated transport failure")
		return nil, types.NewTransientGatewayError(fmt.Errorf("broker busy"))
	}

	filled := qty
	if rand.Float64() > g.FillRate {
		filled = qty / 2
		if filled == 0 {
			filled = 1
		}
	}

	result := &SubmitResult{
		OrderID:        uuid.New().String(),
		FilledQuantity: filled,
		FilledPrice:    price,
	}

	logger.Debug().
		Str("order_id", result.OrderID).
		Int64("filled_quantity", filled).
		Msg("simulated fill")

	return result, nil
}

func (g *SimGateway) Cancel(ctx context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancelled[orderID] {
		return false, nil
	}
	g.cancelled[orderID] = true
	return true, nil
}

// SimMarketData serves prices and volumes from in-memory tables that a
// simulation script can mutate mid-run.
type SimMarketData struct {
	mu        sync.RWMutex
	prices    map[string]float64
	volumes   map[string]int64
	benchmark float64
}

func NewSimMarketData() *SimMarketData {
	return &SimMarketData{
		prices:  make(map[string]float64),
		volumes: make(map[string]int64),
	}
}

func (m *SimMarketData) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

func (m *SimMarketData) SetVolume(symbol string, volume int64) {
	m.mu.Lock()
	m.volumes[symbol] = volume
	m.mu.Unlock()
}

func (m *SimMarketData) SetBenchmarkChangePct(pct float64) {
	m.mu.Lock()
	m.benchmark = pct
	m.mu.Unlock()
}

func (m *SimMarketData) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.prices[symbol]
	if !ok {
		return 0, types.NewTransientGatewayError(fmt.Errorf("no price for %s", symbol))
	}
	return price, nil
}

func (m *SimMarketData) AvgDailyVolume(ctx context.Context, symbol string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vol, ok := m.volumes[symbol]
	if !ok {
		return 0, types.NewTransientGatewayError(fmt.Errorf("no volume for %s", symbol))
	}
	return vol, nil
}

func (m *SimMarketData) BenchmarkChangePct(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.benchmark, nil
}

// SessionCalendar is a fixed-hours market calendar. Open/close windows
// are compared in the configured location, not the host zone.
type SessionCalendar struct {
	Location  *time.Location
	Open      time.Duration // offset from midnight, e.g. 9h30m
	Close     time.Duration // offset from midnight, e.g. 16h
	EdgeWidth time.Duration // window before open/close counted as the edge
}

// NewUSEquityCalendar returns the regular US cash session.
func NewUSEquityCalendar() *SessionCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &SessionCalendar{
		Location:  loc,
		Open:      9*time.Hour + 30*time.Minute,
		Close:     16 * time.Hour,
		EdgeWidth: 10 * time.Minute,
	}
}

func (c *SessionCalendar) NearSessionEdge(t time.Time) bool {
	local := t.In(c.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)
	offset := local.Sub(midnight)

	nearOpen := offset >= c.Open-c.EdgeWidth && offset <= c.Open+c.EdgeWidth
	nearClose := offset >= c.Close-c.EdgeWidth && offset <= c.Close
	return nearOpen || nearClose
}

// LogSink writes notifications to the structured log. Used when no
// external notification channel is configured.
type LogSink struct{}

func (LogSink) Notify(event Event) {
	log.Info().
		Str("component", "notifications").
		Str("kind", event.Kind).
		Fields(event.Fields).
		Msg(event.Message)
}
