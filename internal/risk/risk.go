// Package risk derives the active risk posture from account performance
// and gates every trade against it.
package risk

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/scheduler"
	"github.com/ksred/exec-engine/internal/types"
)

// Limits are the fail-closed trading gates checked before any order.
type Limits struct {
	DailyLossLimit       float64 `mapstructure:"daily_loss_limit" json:"daily_loss_limit"`             // fraction of capital, default 0.03
	TotalLossLimit       float64 `mapstructure:"total_loss_limit" json:"total_loss_limit"`             // fraction of initial capital, default 0.10
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses" json:"max_consecutive_losses"` // default 3
}

// DefaultLimits returns the stock gate thresholds.
func DefaultLimits() Limits {
	return Limits{
		DailyLossLimit:       0.03,
		TotalLossLimit:       0.10,
		MaxConsecutiveLosses: 3,
	}
}

// Controller owns the active mode and all sizing/approval parameters.
// Reads are fast snapshots under RWMutex so a mode transition is never
// observable halfway through.
type Controller struct {
	mu      sync.RWMutex
	configs ModeConfigs
	limits  Limits
	clock   scheduler.Clock

	initialCapital float64
	cash           float64
	capital        float64 // cash + marked position value

	mode     Mode
	override *Mode

	dailyStartCapital float64
	dailyDate         string

	consecutiveLosses int
	emergencyStop     bool
}

// NewController builds a controller at NORMAL with full cash.
func NewController(configs ModeConfigs, limits Limits, initialCapital float64, clock scheduler.Clock) (*Controller, error) {
	if err := configs.Validate(); err != nil {
		return nil, err
	}
	if initialCapital <= 0 {
		return nil, types.NewValidationError("initial capital must be positive, got %v", initialCapital)
	}

	return &Controller{
		configs:           configs,
		limits:            limits,
		clock:             clock,
		initialCapital:    initialCapital,
		cash:              initialCapital,
		capital:           initialCapital,
		mode:              ModeNormal,
		dailyStartCapital: initialCapital,
		dailyDate:         clock.Now().Format("2006-01-02"),
	}, nil
}

// Recompute re-derives capital and mode from the current marked value of
// open positions. Called after every fill and on each monitor cycle.
func (c *Controller) Recompute(positionsValue float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollDailyLocked()
	c.capital = c.cash + positionsValue

	if c.returnRateLocked() <= -c.limits.TotalLossLimit && !c.emergencyStop {
		c.emergencyStop = true
		log.Error().
			Float64("return_rate", c.returnRateLocked()).
			Msg("total loss limit breached, emergency stop latched")
	}

	next := ModeForReturnRate(c.returnRateLocked())
	if next != c.mode {
		log.Info().
			Str("from", string(c.mode)).
			Str("to", string(next)).
			Float64("return_rate", c.returnRateLocked()).
			Interface("from_config", c.configs[c.mode]).
			Interface("to_config", c.configs[next]).
			Msg("risk mode transition")
		c.mode = next
	}
}

// Mode returns the active mode, honoring any operator override.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeModeLocked()
}

// ActiveConfig returns the active mode and a copy of its config. Callers
// submitting orders capture this once; in-flight orders keep the capture.
func (c *Controller) ActiveConfig() (Mode, ModeConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mode := c.activeModeLocked()
	return mode, c.configs[mode]
}

// SetOverride pins the mode regardless of return rate. Passing nil
// clears the pin and resumes derived selection.
func (c *Controller) SetOverride(mode *Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.override = mode
	if mode != nil {
		log.Warn().Str("mode", string(*mode)).Msg("risk mode override set")
	} else {
		log.Info().Str("derived", string(c.mode)).Msg("risk mode override cleared")
	}
}

// Override returns the pinned mode, or nil when selection is derived.
func (c *Controller) Override() *Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.override == nil {
		return nil
	}
	m := *c.override
	return &m
}

// ReturnRate is (capital - initial) / initial.
func (c *Controller) ReturnRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.returnRateLocked()
}

// Cash returns uncommitted buying power.
func (c *Controller) Cash() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cash
}

// InitialCapital returns the configured starting capital.
func (c *Controller) InitialCapital() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialCapital
}

// ApplyFill moves cash for a confirmed fill.
func (c *Controller) ApplyFill(side types.Side, qty int64, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	notional := float64(qty) * price
	if side == types.SideBuy {
		c.cash -= notional
	} else {
		c.cash += notional
	}
}

// RecordTradeResult updates the consecutive-loss streak from a closed
// trade's realized P&L.
func (c *Controller) RecordTradeResult(realizedPnL float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if realizedPnL < 0 {
		c.consecutiveLosses++
		log.Debug().Int("streak", c.consecutiveLosses).Msg("losing trade recorded")
	} else {
		c.consecutiveLosses = 0
	}
}

// PositionSize returns floor(min(capital*riskRatio, availableCash)/price).
func (c *Controller) PositionSize(price, availableCash float64) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if price <= 0 {
		return 0
	}
	cfg := c.configs[c.activeModeLocked()]
	budget := math.Min(c.capital*cfg.RiskPerTradeRatio, availableCash)
	if budget <= 0 {
		return 0
	}
	return int64(math.Floor(budget / price))
}

// ExitThresholds returns the take-profit and stop-loss prices for an
// entry at the given price under the active mode.
func (c *Controller) ExitThresholds(entryPrice float64) (takeProfit, stopLoss float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg := c.configs[c.activeModeLocked()]
	return entryPrice * (1 + cfg.TakeProfitRatio), entryPrice * (1 - cfg.StopLossRatio)
}

// ApproveSignal gates a signal on score and confidence tier. Returns a
// validation error naming the failed gate, or nil when approved.
func (c *Controller) ApproveSignal(score float64, confidence types.ConfidenceTier) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mode := c.activeModeLocked()
	cfg := c.configs[mode]

	if score < cfg.MinSignalScore {
		return types.NewValidationError("score %.2f below %s minimum %.2f", score, mode, cfg.MinSignalScore)
	}
	if confidence.Rank() < cfg.MinConfidence.Rank() {
		return types.NewValidationError("confidence %s below %s requirement %s", confidence, mode, cfg.MinConfidence)
	}
	return nil
}

// CanTrade checks every fail-closed gate. The total-loss gate latches a
// permanent emergency stop that survives capital recovery.
func (c *Controller) CanTrade() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollDailyLocked()

	if c.returnRateLocked() <= -c.limits.TotalLossLimit {
		c.emergencyStop = true
	}
	if c.emergencyStop {
		return false, "emergency stop"
	}

	if c.dailyStartCapital > 0 {
		dailyLoss := (c.dailyStartCapital - c.capital) / c.dailyStartCapital
		if dailyLoss >= c.limits.DailyLossLimit {
			return false, "daily loss limit"
		}
	}

	if c.consecutiveLosses >= c.limits.MaxConsecutiveLosses {
		return false, "consecutive losses"
	}

	return true, ""
}

// EmergencyStopped reports whether the permanent stop has latched.
func (c *Controller) EmergencyStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.emergencyStop
}

func (c *Controller) activeModeLocked() Mode {
	if c.override != nil {
		return *c.override
	}
	return c.mode
}

func (c *Controller) returnRateLocked() float64 {
	return (c.capital - c.initialCapital) / c.initialCapital
}

// rollDailyLocked resets the daily loss baseline on the first call of a
// new calendar day.
func (c *Controller) rollDailyLocked() {
	today := c.clock.Now().Format("2006-01-02")
	if today != c.dailyDate {
		c.dailyDate = today
		c.dailyStartCapital = c.capital
		log.Info().Float64("daily_start_capital", c.capital).Msg("daily loss baseline reset")
	}
}
