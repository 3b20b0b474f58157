package types

import (
	"time"

	"gorm.io/gorm"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type EntryStatus string

const (
	EntryPending   EntryStatus = "PENDING"
	EntryPartial   EntryStatus = "PARTIAL"
	EntryFilled    EntryStatus = "FILLED"
	EntryCancelled EntryStatus = "CANCELLED"
)

// Terminal reports whether the entry can no longer change state.
func (s EntryStatus) Terminal() bool {
	return s == EntryFilled || s == EntryCancelled
}

type ConfidenceTier string

const (
	ConfidenceLow    ConfidenceTier = "LOW"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceHigh   ConfidenceTier = "HIGH"
)

// Rank orders confidence tiers for threshold comparisons.
// Unknown tiers rank below LOW so they never satisfy a requirement.
func (c ConfidenceTier) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// Signal is an approved trade request from the upstream scoring layer.
type Signal struct {
	Symbol         string         `json:"symbol" binding:"required"`
	Side           Side           `json:"side" binding:"required"`
	Score          float64        `json:"score"`
	Confidence     ConfidenceTier `json:"confidence"`
	SuggestedPrice float64        `json:"suggested_price"`
	// Policy optionally pins a split strategy; empty means auto.
	Policy string `json:"policy"`
}

// OrderEntry is one child order of an OrderGroup.
type OrderEntry struct {
	gorm.Model     `json:"-"`
	EntryID        string      `gorm:"uniqueIndex" json:"entry_id"`
	GroupID        string      `gorm:"index" json:"group_id"`
	Quantity       int64       `json:"quantity"`
	LimitPrice     float64     `json:"limit_price"`
	OrderType      OrderType   `json:"order_type"`
	Status         EntryStatus `json:"status"`
	FilledQuantity int64       `json:"filled_quantity"`
	FilledPrice    float64     `json:"filled_price"`
	DelaySeconds   int         `json:"delay_seconds"`
	GatewayOrderID string      `json:"gateway_order_id,omitempty"`
}

// OrderGroup is a parent order and its child-order schedule. The invariant
// sum(entry.Quantity) == TotalQuantity holds from creation to completion.
type OrderGroup struct {
	gorm.Model    `json:"-"`
	GroupID       string       `gorm:"uniqueIndex" json:"group_id"`
	Symbol        string       `gorm:"index" json:"symbol"`
	Side          Side         `json:"side"`
	TotalQuantity int64        `json:"total_quantity"`
	Policy        string       `json:"policy"`
	Entries       []OrderEntry `gorm:"foreignKey:GroupID;references:GroupID" json:"entries"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// FilledQuantity sums confirmed fills across all entries.
func (g *OrderGroup) FilledQuantity() int64 {
	var total int64
	for i := range g.Entries {
		total += g.Entries[i].FilledQuantity
	}
	return total
}

// Complete reports whether every entry reached a terminal status.
func (g *OrderGroup) Complete() bool {
	for i := range g.Entries {
		if !g.Entries[i].Status.Terminal() {
			return false
		}
	}
	return len(g.Entries) > 0
}

// Position is an open holding. Owned exclusively by the position ledger;
// callers only ever see copies.
type Position struct {
	gorm.Model      `json:"-"`
	Symbol          string    `gorm:"uniqueIndex" json:"symbol"`
	Quantity        int64     `json:"quantity"`
	AvgEntryPrice   float64   `json:"avg_entry_price"`
	CurrentPrice    float64   `json:"current_price"`
	StopLossPrice   float64   `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64   `json:"take_profit_price,omitempty"`
	OpenedAt        time.Time `json:"opened_at"`
}

// MarketValue is the position's value at the last marked price.
func (p *Position) MarketValue() float64 {
	return float64(p.Quantity) * p.CurrentPrice
}

// UnrealizedPnL is the open profit or loss at the last marked price.
func (p *Position) UnrealizedPnL() float64 {
	return float64(p.Quantity) * (p.CurrentPrice - p.AvgEntryPrice)
}

// UnrealizedReturn is the fractional return against the average entry.
func (p *Position) UnrealizedReturn() float64 {
	if p.AvgEntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgEntryPrice) / p.AvgEntryPrice
}

// PortfolioSnapshot is a point-in-time view of all open positions.
type PortfolioSnapshot struct {
	Positions       []Position `json:"positions"`
	TotalValue      float64    `json:"total_value"`
	TotalUnrealized float64    `json:"total_unrealized"`
	TakenAt         time.Time  `json:"taken_at"`
}
