package execution

import (
	"math"

	"github.com/ksred/exec-engine/internal/types"
)

// AdjustForSlippage pads the limit price toward the fill: buys pay up,
// sells give back.
func AdjustForSlippage(price float64, side types.Side, slippageRatio float64) float64 {
	if side == types.SideBuy {
		return price * (1 + slippageRatio)
	}
	return price * (1 - slippageRatio)
}

// TickSize returns the minimum price increment at the given price level.
func TickSize(price float64) float64 {
	switch {
	case price < 1000:
		return 1
	case price < 5000:
		return 5
	case price < 10000:
		return 10
	case price < 50000:
		return 50
	case price < 100000:
		return 100
	case price < 500000:
		return 500
	default:
		return 1000
	}
}

// RoundToTick snaps a price to the tick grid without hurting fill
// probability: buys round up, sells round down.
func RoundToTick(price float64, side types.Side) float64 {
	tick := TickSize(price)
	if side == types.SideBuy {
		return math.Ceil(price/tick) * tick
	}
	return math.Floor(price/tick) * tick
}
