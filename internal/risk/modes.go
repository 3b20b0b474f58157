package risk

import (
	"fmt"

	"github.com/ksred/exec-engine/internal/types"
)

// Mode is the active risk posture. Exactly one mode is active at a time
// and it is always re-derivable from the current return rate.
type Mode string

const (
	ModeAggressive       Mode = "AGGRESSIVE"
	ModeNormal           Mode = "NORMAL"
	ModeConservative     Mode = "CONSERVATIVE"
	ModeVeryConservative Mode = "VERY_CONSERVATIVE"
)

// ParseMode validates an operator-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAggressive, ModeNormal, ModeConservative, ModeVeryConservative:
		return Mode(s), nil
	}
	return "", types.NewValidationError("unknown risk mode %q", s)
}

// ModeConfig is the sizing and threshold bundle carried by a mode.
type ModeConfig struct {
	MaxOpenPositions  int                  `json:"max_open_positions"`
	RiskPerTradeRatio float64              `json:"risk_per_trade_ratio"`
	TakeProfitRatio   float64              `json:"take_profit_ratio"`
	StopLossRatio     float64              `json:"stop_loss_ratio"`
	MinSignalScore    float64              `json:"min_signal_score"`
	MinConfidence     types.ConfidenceTier `json:"min_confidence"`
}

// Validate rejects configs that would size trades nonsensically.
func (c ModeConfig) Validate() error {
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive")
	}
	if c.RiskPerTradeRatio <= 0 || c.RiskPerTradeRatio > 1 {
		return fmt.Errorf("risk_per_trade_ratio must be in (0,1], got %v", c.RiskPerTradeRatio)
	}
	if c.TakeProfitRatio <= 0 || c.StopLossRatio <= 0 {
		return fmt.Errorf("take_profit_ratio and stop_loss_ratio must be positive")
	}
	if c.MinSignalScore < 0 || c.MinSignalScore > 1 {
		return fmt.Errorf("min_signal_score must be in [0,1], got %v", c.MinSignalScore)
	}
	if c.MinConfidence.Rank() == 0 {
		return fmt.Errorf("min_confidence must be LOW, MEDIUM or HIGH")
	}
	return nil
}

// ModeConfigs maps every mode to its config. All four modes must be
// present and valid before the controller accepts the set.
type ModeConfigs map[Mode]ModeConfig

// DefaultModeConfigs returns the stock parameter set.
func DefaultModeConfigs() ModeConfigs {
	return ModeConfigs{
		ModeAggressive: {
			MaxOpenPositions:  10,
			RiskPerTradeRatio: 0.25,
			TakeProfitRatio:   0.08,
			StopLossRatio:     0.04,
			MinSignalScore:    0.60,
			MinConfidence:     types.ConfidenceLow,
		},
		ModeNormal: {
			MaxOpenPositions:  7,
			RiskPerTradeRatio: 0.15,
			TakeProfitRatio:   0.05,
			StopLossRatio:     0.03,
			MinSignalScore:    0.70,
			MinConfidence:     types.ConfidenceMedium,
		},
		ModeConservative: {
			MaxOpenPositions:  5,
			RiskPerTradeRatio: 0.10,
			TakeProfitRatio:   0.04,
			StopLossRatio:     0.02,
			MinSignalScore:    0.80,
			MinConfidence:     types.ConfidenceMedium,
		},
		ModeVeryConservative: {
			MaxOpenPositions:  3,
			RiskPerTradeRatio: 0.05,
			TakeProfitRatio:   0.03,
			StopLossRatio:     0.015,
			MinSignalScore:    0.90,
			MinConfidence:     types.ConfidenceHigh,
		},
	}
}

// Validate checks that every mode has a valid config.
func (m ModeConfigs) Validate() error {
	for _, mode := range []Mode{ModeAggressive, ModeNormal, ModeConservative, ModeVeryConservative} {
		cfg, ok := m[mode]
		if !ok {
			return fmt.Errorf("missing config for mode %s", mode)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("mode %s: %w", mode, err)
		}
	}
	return nil
}

// ModeForReturnRate is the total, deterministic mode selection function.
// Threshold ordering matters: the very-conservative band is checked
// before the conservative band it nests against.
func ModeForReturnRate(r float64) Mode {
	switch {
	case r >= 0.05:
		return ModeAggressive
	case r <= -0.10:
		return ModeVeryConservative
	case r <= -0.05:
		return ModeConservative
	default:
		return ModeNormal
	}
}
