// Package ledger is the single source of truth for open positions and
// realized P&L. Every mutation funnels through one mutex because the
// execution engine and the emergency monitor both write concurrently.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/types"
)

type Ledger struct {
	mu          sync.Mutex
	positions   map[string]*types.Position
	realizedPnL float64
	now         func() time.Time
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[string]*types.Position),
		now:       time.Now,
	}
}

// Restore seeds the ledger with persisted positions on startup.
func (l *Ledger) Restore(positions []types.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range positions {
		p := positions[i]
		if p.Quantity <= 0 {
			continue
		}
		l.positions[p.Symbol] = &p
	}
	log.Info().Int("positions", len(l.positions)).Msg("ledger restored")
}

// OpenOrAdd records a buy fill, opening a new position or averaging
// into an existing one. Returns a copy of the resulting position.
func (l *Ledger) OpenOrAdd(symbol string, qty int64, price float64) (types.Position, error) {
	if qty <= 0 {
		return types.Position{}, types.NewValidationError("quantity must be positive, got %d", qty)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		pos = &types.Position{
			Symbol:        symbol,
			Quantity:      qty,
			AvgEntryPrice: price,
			CurrentPrice:  price,
			OpenedAt:      l.now(),
		}
		l.positions[symbol] = pos
	} else {
		oldQty, oldAvg := pos.Quantity, pos.AvgEntryPrice
		pos.Quantity = oldQty + qty
		pos.AvgEntryPrice = (float64(oldQty)*oldAvg + float64(qty)*price) / float64(oldQty+qty)
		pos.CurrentPrice = price
	}

	log.Debug().
		Str("symbol", symbol).
		Int64("quantity", pos.Quantity).
		Float64("avg_entry_price", pos.AvgEntryPrice).
		Msg("position opened or added")

	return *pos, nil
}

// ReduceOrClose records a sell fill against an open position and returns
// the remaining position (nil when fully closed) and the realized P&L.
// Closing more than held fails without mutating the ledger.
func (l *Ledger) ReduceOrClose(symbol string, qty int64, price float64) (*types.Position, float64, error) {
	if qty <= 0 {
		return nil, 0, types.NewValidationError("quantity must be positive, got %d", qty)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return nil, 0, types.NewInsufficientPositionError(symbol, qty, 0)
	}
	if qty > pos.Quantity {
		return nil, 0, types.NewInsufficientPositionError(symbol, qty, pos.Quantity)
	}

	realized := (price - pos.AvgEntryPrice) * float64(qty)
	l.realizedPnL += realized

	pos.Quantity -= qty
	pos.CurrentPrice = price

	log.Debug().
		Str("symbol", symbol).
		Int64("closed_quantity", qty).
		Float64("realized_pnl", realized).
		Int64("remaining", pos.Quantity).
		Msg("position reduced")

	if pos.Quantity == 0 {
		delete(l.positions, symbol)
		return nil, realized, nil
	}

	remaining := *pos
	return &remaining, realized, nil
}

// Mark updates the current price of an open position. Unknown symbols
// are ignored; the position may have closed under a racing fill.
func (l *Ledger) Mark(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[symbol]; ok {
		pos.CurrentPrice = price
	}
}

// SetExitLevels records stop-loss and take-profit prices on a position.
func (l *Ledger) SetExitLevels(symbol string, stopLoss, takeProfit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[symbol]; ok {
		pos.StopLossPrice = stopLoss
		pos.TakeProfitPrice = takeProfit
	}
}

// Position returns a copy of the open position for symbol.
func (l *Ledger) Position(symbol string) (types.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// RealizedPnL returns cumulative realized profit and loss.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedPnL
}

// Snapshot returns a consistent copy of all open positions with totals,
// ordered by symbol.
func (l *Ledger) Snapshot() types.PortfolioSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := types.PortfolioSnapshot{
		Positions: make([]types.Position, 0, len(l.positions)),
		TakenAt:   l.now(),
	}
	for _, pos := range l.positions {
		snap.Positions = append(snap.Positions, *pos)
		snap.TotalValue += pos.MarketValue()
		snap.TotalUnrealized += pos.UnrealizedPnL()
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})
	return snap
}
