// Package gateway defines the broker and market-data boundaries of the
// execution core. The wire protocols behind them live in a separate
// bridge service; the core only ever talks to these interfaces.
package gateway

import (
	"context"
	"time"

	"github.com/ksred/exec-engine/internal/types"
)

// SubmitResult is the broker's synchronous acknowledgement of an order.
type SubmitResult struct {
	OrderID        string
	FilledQuantity int64
	FilledPrice    float64
}

// OrderGateway submits and cancels orders at the broker bridge.
//
// Submit must return a *types.ExecError tagged KindTransientGateway for
// transport failures and KindRejectedOrder for explicit rejections, so
// the execution engine can decide whether to retry.
type OrderGateway interface {
	Submit(ctx context.Context, symbol string, side types.Side, qty int64, price float64, orderType types.OrderType) (*SubmitResult, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
}

// MarketDataGateway serves the market state the core needs for sizing
// and supervision. Historical series stay in the data service.
type MarketDataGateway interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	AvgDailyVolume(ctx context.Context, symbol string) (int64, error)
	BenchmarkChangePct(ctx context.Context) (float64, error)
}

// MarketCalendar answers session-timing questions so order-type
// selection never hardcodes exchange hours.
type MarketCalendar interface {
	// NearSessionEdge reports whether t falls inside the open/close
	// window where limit orders risk expiring unfilled.
	NearSessionEdge(t time.Time) bool
}

// Event is a fire-and-forget notification to the operator channel.
type Event struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	At      time.Time              `json:"at"`
}

// NotificationSink receives open/close/emergency alerts. Implementations
// must never block the trading path.
type NotificationSink interface {
	Notify(event Event)
}

// NopSink discards notifications.
type NopSink struct{}

func (NopSink) Notify(Event) {}
