// Package emergency watches the portfolio for abnormal conditions and
// halts or unwinds trading automatically. It owns the circuit breaker
// and the append-only emergency log.
package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/gateway"
	"github.com/ksred/exec-engine/internal/ledger"
	"github.com/ksred/exec-engine/internal/scheduler"
	"github.com/ksred/exec-engine/internal/types"
)

// Liquidator is the slice of the execution engine the monitor needs.
// Liquidations bypass the split planner: certainty of exit over impact.
type Liquidator interface {
	LiquidatePosition(ctx context.Context, symbol string, fraction float64, reason string) error
	LiquidateAll(ctx context.Context, fraction float64, reason string) error
}

// AccountSource exposes the capital view owned by the risk controller.
type AccountSource interface {
	Cash() float64
	InitialCapital() float64
	Recompute(positionsValue float64)
}

// Config carries the monitor's thresholds and cadence.
type Config struct {
	Interval              time.Duration `mapstructure:"interval" json:"interval"`                               // default 30s
	PortfolioEmergencyPct float64       `mapstructure:"portfolio_emergency_pct" json:"portfolio_emergency_pct"` // default -0.15
	PortfolioCriticalPct  float64       `mapstructure:"portfolio_critical_pct" json:"portfolio_critical_pct"`   // default -0.10
	PositionCriticalPct   float64       `mapstructure:"position_critical_pct" json:"position_critical_pct"`     // default -0.15
	BenchmarkCrashPct     float64       `mapstructure:"benchmark_crash_pct" json:"benchmark_crash_pct"`         // percent units, default -3.0
	BreakerCoolDown       time.Duration `mapstructure:"breaker_cool_down" json:"breaker_cool_down"`             // default 30m
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Interval:              30 * time.Second,
		PortfolioEmergencyPct: -0.15,
		PortfolioCriticalPct:  -0.10,
		PositionCriticalPct:   -0.15,
		BenchmarkCrashPct:     -3.0,
		BreakerCoolDown:       30 * time.Minute,
	}
}

// Monitor runs the evaluation loop on its own background worker,
// independent of the order submission path.
type Monitor struct {
	cfg        Config
	ledger     *ledger.Ledger
	liquidator Liquidator
	market     gateway.MarketDataGateway
	account    AccountSource
	breaker    *CircuitBreaker
	store      *Database
	notifier   gateway.NotificationSink
	clock      scheduler.Clock

	mu               sync.Mutex
	unresolved       bool
	portfolioHandled EventLevel
	positionsHandled map[string]bool
	breakerHandled   bool
}

func NewMonitor(
	cfg Config,
	led *ledger.Ledger,
	liquidator Liquidator,
	market gateway.MarketDataGateway,
	account AccountSource,
	breaker *CircuitBreaker,
	store *Database,
	notifier gateway.NotificationSink,
	clock scheduler.Clock,
) *Monitor {
	return &Monitor{
		cfg:              cfg,
		ledger:           led,
		liquidator:       liquidator,
		market:           market,
		account:          account,
		breaker:          breaker,
		store:            store,
		notifier:         notifier,
		clock:            clock,
		positionsHandled: make(map[string]bool),
	}
}

// Breaker returns the circuit breaker owned by this monitor.
func (m *Monitor) Breaker() *CircuitBreaker {
	return m.breaker
}

// Unresolved reports whether an emergency response failed and needs
// operator attention.
func (m *Monitor) Unresolved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unresolved
}

// Start runs the evaluation loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	logger := log.With().Str("component", "emergency_monitor").Logger()
	logger.Info().Dur("interval", m.cfg.Interval).Msg("starting emergency monitor")

	ticker := m.clock.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down emergency monitor")
			return
		case <-ticker.C():
			m.evaluate(ctx)
		}
	}
}

// evaluate runs one monitoring cycle: refresh marks, then check the
// loss ladder in priority order.
func (m *Monitor) evaluate(ctx context.Context) {
	m.refreshMarks(ctx)

	snap := m.ledger.Snapshot()
	m.account.Recompute(snap.TotalValue)

	initial := m.account.InitialCapital()
	portfolioValue := m.account.Cash() + snap.TotalValue

	// A zero portfolio at startup is "no data", not a -100% loss.
	if initial <= 0 || portfolioValue <= 0 {
		log.Debug().Msg("no portfolio data yet, skipping evaluation")
		return
	}

	m.checkPortfolioLoss(ctx, portfolioValue, initial)

	// Re-snapshot: a portfolio-level liquidation may have closed
	// positions this cycle.
	m.checkPositionLosses(ctx, m.ledger.Snapshot().Positions)
	m.checkBenchmark(ctx)
}

func (m *Monitor) refreshMarks(ctx context.Context) {
	snap := m.ledger.Snapshot()
	for i := range snap.Positions {
		symbol := snap.Positions[i].Symbol
		price, err := m.market.CurrentPrice(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("failed to mark position")
			continue
		}
		m.ledger.Mark(symbol, price)
	}
}

func (m *Monitor) checkPortfolioLoss(ctx context.Context, value, initial float64) {
	loss := (value - initial) / initial

	switch {
	case loss <= m.cfg.PortfolioEmergencyPct:
		if m.portfolioHandled == LevelEmergency {
			return
		}
		m.portfolioHandled = LevelEmergency
		err := m.liquidator.LiquidateAll(ctx, 1.0, "portfolio emergency loss")
		m.record(ctx, KindPortfolioLoss, LevelEmergency,
			map[string]interface{}{"loss": loss, "portfolio_value": value},
			"full liquidation", err)

	case loss <= m.cfg.PortfolioCriticalPct:
		if m.portfolioHandled == LevelCritical || m.portfolioHandled == LevelEmergency {
			return
		}
		m.portfolioHandled = LevelCritical
		err := m.liquidator.LiquidateAll(ctx, 0.5, "portfolio critical loss")
		m.record(ctx, KindPortfolioLoss, LevelCritical,
			map[string]interface{}{"loss": loss, "portfolio_value": value},
			"50% liquidation", err)

	default:
		m.portfolioHandled = ""
	}
}

func (m *Monitor) checkPositionLosses(ctx context.Context, positions []types.Position) {
	open := make(map[string]bool, len(positions))
	for i := range positions {
		pos := &positions[i]
		open[pos.Symbol] = true

		if pos.UnrealizedReturn() > m.cfg.PositionCriticalPct {
			delete(m.positionsHandled, pos.Symbol)
			continue
		}
		if m.positionsHandled[pos.Symbol] {
			continue
		}
		m.positionsHandled[pos.Symbol] = true

		err := m.liquidator.LiquidatePosition(ctx, pos.Symbol, 1.0, "position critical loss")
		m.record(ctx, KindPositionLoss, LevelCritical,
			map[string]interface{}{
				"symbol":            pos.Symbol,
				"unrealized_return": pos.UnrealizedReturn(),
			},
			fmt.Sprintf("liquidate %s", pos.Symbol), err)
	}

	// Closed positions no longer need dedupe state.
	for symbol := range m.positionsHandled {
		if !open[symbol] {
			delete(m.positionsHandled, symbol)
		}
	}
}

func (m *Monitor) checkBenchmark(ctx context.Context) {
	pct, err := m.market.BenchmarkChangePct(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("benchmark read failed")
		return
	}

	if pct > m.cfg.BenchmarkCrashPct {
		m.breakerHandled = false
		return
	}
	if m.breakerHandled && m.breaker.Active() {
		return
	}
	m.breakerHandled = true

	m.breaker.Activate(m.cfg.BreakerCoolDown)
	m.record(ctx, KindMarketCrash, LevelWarning,
		map[string]interface{}{"benchmark_change_pct": pct},
		fmt.Sprintf("circuit breaker for %s", m.cfg.BreakerCoolDown), nil)
}

// record appends an event and pushes a notification. A failed response
// escalates to an unresolved SYSTEM_ERROR so it is never silently lost.
func (m *Monitor) record(ctx context.Context, kind EventKind, level EventLevel, payload map[string]interface{}, action string, actionErr error) {
	m.appendEvent(kind, level, payload, action)

	m.mu.Lock()
	defer m.mu.Unlock()

	if actionErr != nil {
		m.unresolved = true
		m.appendEvent(KindSystemError, LevelCritical,
			map[string]interface{}{"error": actionErr.Error(), "failed_action": action},
			"unresolved emergency, operator attention required")
		return
	}
	if level == LevelEmergency || level == LevelCritical {
		m.unresolved = false
	}
}

func (m *Monitor) appendEvent(kind EventKind, level EventLevel, payload map[string]interface{}, action string) {
	body, _ := json.Marshal(payload)
	event := &Event{
		EventID:     uuid.New().String(),
		Kind:        kind,
		Level:       level,
		DetectedAt:  m.clock.Now(),
		Payload:     string(body),
		ActionTaken: action,
	}

	log.WithLevel(zerologLevel(level)).
		Str("component", "emergency_monitor").
		Str("kind", string(kind)).
		Str("level", string(level)).
		RawJSON("payload", body).
		Str("action", action).
		Msg("emergency event")

	if m.store != nil {
		if err := m.store.Append(event); err != nil {
			log.Error().Err(err).Msg("failed to append emergency event")
		}
	}
	if m.notifier != nil {
		m.notifier.Notify(gateway.Event{
			Kind:    string(kind),
			Message: action,
			Fields:  payload,
			At:      event.DetectedAt,
		})
	}
}

// RecordManual appends an operator-initiated event (e.g. forced
// liquidation) to the same log.
func (m *Monitor) RecordManual(kind EventKind, level EventLevel, payload map[string]interface{}, action string) {
	m.appendEvent(kind, level, payload, action)
}

func zerologLevel(level EventLevel) zerolog.Level {
	switch level {
	case LevelEmergency, LevelCritical:
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
