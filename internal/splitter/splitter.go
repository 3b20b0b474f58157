// Package splitter turns a target quantity and a liquidity estimate into
// an ordered child-order schedule that bounds market impact.
package splitter

import (
	"math"
	"time"

	"github.com/ksred/exec-engine/internal/types"
)

// Policy selects a split strategy.
type Policy string

const (
	// PolicyAuto picks immediate or liquidity-adaptive from the impact ratio.
	PolicyAuto              Policy = "auto"
	PolicyImmediate         Policy = "immediate"
	PolicyLiquidityAdaptive Policy = "liquidity_adaptive"
	PolicyTWAP              Policy = "twap"
	PolicyVWAP              Policy = "vwap"
	PolicyIceberg           Policy = "iceberg"
)

// ParsePolicy validates a caller-supplied policy name. Empty selects auto.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyAuto, nil
	case PolicyAuto, PolicyImmediate, PolicyLiquidityAdaptive, PolicyTWAP, PolicyVWAP, PolicyIceberg:
		return Policy(s), nil
	}
	return "", types.NewValidationError("unknown split policy %q", s)
}

// ChildOrder is one slice of the schedule. PriceOffsetRatio steps the
// limit price per child: upward on the buy side (chasing a rising ask),
// and upward on the sell side (stepping the profit target).
type ChildOrder struct {
	Quantity         int64
	PriceOffsetRatio float64
	Delay            time.Duration
}

// Request is the planning input.
type Request struct {
	Symbol         string
	Side           types.Side
	TargetQty      int64
	CurrentPrice   float64
	AvgDailyVolume int64
	Policy         Policy
}

// Config carries the planner's tunables.
type Config struct {
	ImpactThreshold     float64       `mapstructure:"impact_threshold" json:"impact_threshold"`           // default 0.05
	MaxAdaptiveChildren int           `mapstructure:"max_adaptive_children" json:"max_adaptive_children"` // default 10
	MinAdaptiveDelay    time.Duration `mapstructure:"min_adaptive_delay" json:"min_adaptive_delay"`       // default 10s
	MaxAdaptiveDelay    time.Duration `mapstructure:"max_adaptive_delay" json:"max_adaptive_delay"`       // default 300s
	TWAPSlices          int           `mapstructure:"twap_slices" json:"twap_slices"`                     // default 10
	TWAPInterval        time.Duration `mapstructure:"twap_interval" json:"twap_interval"`                 // default 60s
	VWAPInterval        time.Duration `mapstructure:"vwap_interval" json:"vwap_interval"`                 // default 90s
	IcebergInterval     time.Duration `mapstructure:"iceberg_interval" json:"iceberg_interval"`           // default 30s
	IcebergMaxChildren  int           `mapstructure:"iceberg_max_children" json:"iceberg_max_children"`   // default 20
	IcebergVolumeRatio  float64       `mapstructure:"iceberg_volume_ratio" json:"iceberg_volume_ratio"`   // of per-minute volume, default 0.05
	PriceOffsetStep     float64       `mapstructure:"price_offset_step" json:"price_offset_step"`         // per child, default 0.001
	TradingMinutes      int           `mapstructure:"trading_minutes" json:"trading_minutes"`             // per session, default 390
}

// DefaultConfig returns the stock planner tunables.
func DefaultConfig() Config {
	return Config{
		ImpactThreshold:     0.05,
		MaxAdaptiveChildren: 10,
		MinAdaptiveDelay:    10 * time.Second,
		MaxAdaptiveDelay:    300 * time.Second,
		TWAPSlices:          10,
		TWAPInterval:        60 * time.Second,
		VWAPInterval:        90 * time.Second,
		IcebergInterval:     30 * time.Second,
		IcebergMaxChildren:  20,
		IcebergVolumeRatio:  0.05,
		PriceOffsetStep:     0.001,
		TradingMinutes:      390,
	}
}

// vwapWeights is the U-shaped intraday volume curve: heavy at the open,
// heaviest at the close, thin through midday. Sums to 1.
var vwapWeights = []float64{0.18, 0.12, 0.09, 0.08, 0.08, 0.09, 0.12, 0.24}

// Plan produces the child-order schedule. The returned quantities always
// sum to req.TargetQty.
func Plan(req Request, cfg Config) ([]ChildOrder, error) {
	if req.TargetQty <= 0 {
		return nil, types.NewValidationError("target quantity must be positive, got %d", req.TargetQty)
	}
	if req.AvgDailyVolume <= 0 {
		return nil, types.NewValidationError("average daily volume must be positive, got %d", req.AvgDailyVolume)
	}

	impact := float64(req.TargetQty) / float64(req.AvgDailyVolume)

	policy := req.Policy
	if policy == PolicyAuto || policy == "" {
		if impact <= cfg.ImpactThreshold {
			policy = PolicyImmediate
		} else {
			policy = PolicyLiquidityAdaptive
		}
	}

	switch policy {
	case PolicyImmediate:
		return []ChildOrder{{Quantity: req.TargetQty}}, nil
	case PolicyLiquidityAdaptive:
		return planAdaptive(req, cfg, impact), nil
	case PolicyTWAP:
		return planTWAP(req, cfg), nil
	case PolicyVWAP:
		return planVWAP(req, cfg), nil
	case PolicyIceberg:
		return planIceberg(req, cfg), nil
	default:
		return nil, types.NewValidationError("unknown split policy %q", policy)
	}
}

// planAdaptive sizes ceil(impact/threshold) equal children, remainder
// spread over the earliest slices, with per-child delays proportional to
// how long each slice needs to hide inside a tenth of per-minute volume.
func planAdaptive(req Request, cfg Config, impact float64) []ChildOrder {
	n := int(math.Ceil(impact / cfg.ImpactThreshold))
	if n < 1 {
		n = 1
	}
	if n > cfg.MaxAdaptiveChildren {
		n = cfg.MaxAdaptiveChildren
	}

	children := equalSplit(req.TargetQty, n)
	volPerMinute := float64(req.AvgDailyVolume) / float64(cfg.TradingMinutes)

	out := make([]ChildOrder, n)
	for i, qty := range children {
		var delay time.Duration
		if i > 0 {
			seconds := float64(qty) / (volPerMinute * 0.1) * 60
			delay = clampDuration(time.Duration(seconds*float64(time.Second)), cfg.MinAdaptiveDelay, cfg.MaxAdaptiveDelay)
		}
		out[i] = ChildOrder{
			Quantity:         qty,
			PriceOffsetRatio: float64(i) * cfg.PriceOffsetStep,
			Delay:            delay,
		}
	}
	return out
}

func planTWAP(req Request, cfg Config) []ChildOrder {
	n := cfg.TWAPSlices
	if int64(n) > req.TargetQty {
		n = int(req.TargetQty)
	}
	children := equalSplit(req.TargetQty, n)

	out := make([]ChildOrder, n)
	for i, qty := range children {
		var delay time.Duration
		if i > 0 {
			delay = cfg.TWAPInterval
		}
		out[i] = ChildOrder{
			Quantity:         qty,
			PriceOffsetRatio: float64(i) * cfg.PriceOffsetStep,
			Delay:            delay,
		}
	}
	return out
}

func planVWAP(req Request, cfg Config) []ChildOrder {
	n := len(vwapWeights)
	if int64(n) > req.TargetQty {
		return planTWAP(req, Config{
			TWAPSlices:      int(req.TargetQty),
			TWAPInterval:    cfg.VWAPInterval,
			PriceOffsetStep: cfg.PriceOffsetStep,
		})
	}

	out := make([]ChildOrder, n)
	var allocated int64
	for i, w := range vwapWeights {
		qty := int64(math.Floor(float64(req.TargetQty) * w))
		if qty < 1 {
			qty = 1
		}
		allocated += qty
		var delay time.Duration
		if i > 0 {
			delay = cfg.VWAPInterval
		}
		out[i] = ChildOrder{
			Quantity:         qty,
			PriceOffsetRatio: float64(i) * cfg.PriceOffsetStep,
			Delay:            delay,
		}
	}

	// Rounding drift lands on the final (heaviest) slice.
	out[n-1].Quantity += req.TargetQty - allocated
	return out
}

// planIceberg reveals slices sized at a fraction of per-minute volume.
// When the child cap is hit, the remainder folds into the last slice so
// the sum invariant holds.
func planIceberg(req Request, cfg Config) []ChildOrder {
	volPerMinute := float64(req.AvgDailyVolume) / float64(cfg.TradingMinutes)
	slice := int64(math.Floor(volPerMinute * cfg.IcebergVolumeRatio))
	if slice < 1 {
		slice = 1
	}

	var out []ChildOrder
	remaining := req.TargetQty
	for remaining > 0 && len(out) < cfg.IcebergMaxChildren {
		qty := slice
		if qty > remaining {
			qty = remaining
		}
		var delay time.Duration
		if len(out) > 0 {
			delay = cfg.IcebergInterval
		}
		out = append(out, ChildOrder{
			Quantity:         qty,
			PriceOffsetRatio: float64(len(out)) * cfg.PriceOffsetStep,
			Delay:            delay,
		})
		remaining -= qty
	}
	if remaining > 0 {
		out[len(out)-1].Quantity += remaining
	}
	return out
}

// equalSplit divides qty into n near-equal parts, remainder first.
func equalSplit(qty int64, n int) []int64 {
	if n < 1 {
		n = 1
	}
	base := qty / int64(n)
	rem := qty % int64(n)

	out := make([]int64, n)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
