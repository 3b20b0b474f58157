// Package execution submits child orders with slippage-aware pricing and
// bounded retry, keeping the position ledger in sync with every fill.
package execution

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/gateway"
	"github.com/ksred/exec-engine/internal/ledger"
	"github.com/ksred/exec-engine/internal/scheduler"
	"github.com/ksred/exec-engine/internal/splitter"
	"github.com/ksred/exec-engine/internal/types"
)

// Account is the capital side of a fill: cash movement, loss-streak
// accounting, and capital recomputation. Implemented by the risk
// controller.
type Account interface {
	ApplyFill(side types.Side, qty int64, price float64)
	RecordTradeResult(realizedPnL float64)
	Recompute(positionsValue float64)
}

// ExitPlanner supplies take-profit/stop-loss prices for a new entry.
type ExitPlanner interface {
	ExitThresholds(entryPrice float64) (takeProfit, stopLoss float64)
}

// HaltCheck is the circuit-breaker read point, owned by the emergency
// monitor.
type HaltCheck interface {
	Active() bool
}

// Config carries the engine's tunables.
type Config struct {
	MaxRetries    int     `mapstructure:"max_retries" json:"max_retries"`       // default 3
	SlippageRatio float64 `mapstructure:"slippage_ratio" json:"slippage_ratio"` // default 0.003
}

// DefaultConfig returns the stock engine tunables.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, SlippageRatio: 0.003}
}

// Engine drives order groups to completion. One goroutine per group;
// groups for different symbols never block each other.
type Engine struct {
	cfg      Config
	gw       gateway.OrderGateway
	calendar gateway.MarketCalendar
	notifier gateway.NotificationSink
	ledger   *ledger.Ledger
	ledgerDB *ledger.Database
	store    *Database
	account  Account
	exits    ExitPlanner
	halt     HaltCheck
	clock    scheduler.Clock

	mu        sync.Mutex
	active    map[string]*types.OrderGroup
	completed map[string]*types.OrderGroup
}

// NewEngine wires the engine. ledgerDB and store may be nil in tests;
// persistence is then skipped.
func NewEngine(
	cfg Config,
	gw gateway.OrderGateway,
	calendar gateway.MarketCalendar,
	notifier gateway.NotificationSink,
	led *ledger.Ledger,
	ledgerDB *ledger.Database,
	store *Database,
	account Account,
	exits ExitPlanner,
	halt HaltCheck,
	clock scheduler.Clock,
) *Engine {
	return &Engine{
		cfg:       cfg,
		gw:        gw,
		calendar:  calendar,
		notifier:  notifier,
		ledger:    led,
		ledgerDB:  ledgerDB,
		store:     store,
		account:   account,
		exits:     exits,
		halt:      halt,
		clock:     clock,
		active:    make(map[string]*types.OrderGroup),
		completed: make(map[string]*types.OrderGroup),
	}
}

// NewGroup materializes a planner schedule into a persisted order group.
// Limit prices step by each child's offset ratio from the reference
// price; the final order type is decided at submit time.
func NewGroup(symbol string, side types.Side, totalQty int64, refPrice float64, policy splitter.Policy, plan []splitter.ChildOrder) *types.OrderGroup {
	group := &types.OrderGroup{
		GroupID:       uuid.New().String(),
		Symbol:        symbol,
		Side:          side,
		TotalQuantity: totalQty,
		Policy:        string(policy),
		CreatedAt:     time.Now(),
	}
	for _, child := range plan {
		group.Entries = append(group.Entries, types.OrderEntry{
			EntryID:      uuid.New().String(),
			GroupID:      group.GroupID,
			Quantity:     child.Quantity,
			LimitPrice:   refPrice * (1 + child.PriceOffsetRatio),
			OrderType:    types.OrderTypeLimit,
			Status:       types.EntryPending,
			DelaySeconds: int(child.Delay / time.Second),
		})
	}
	return group
}

// Execute runs the group asynchronously and returns immediately. The
// caller gets the group back from submit and polls or cancels by ID.
func (e *Engine) Execute(ctx context.Context, group *types.OrderGroup) error {
	if e.halt != nil && e.halt.Active() {
		return types.NewTradingHaltedError("circuit breaker active")
	}

	e.mu.Lock()
	e.active[group.GroupID] = group
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.CreateGroup(group); err != nil {
			log.Error().Err(err).Str("group_id", group.GroupID).Msg("failed to persist order group")
		}
	}

	go e.runGroup(ctx, group)
	return nil
}

func (e *Engine) runGroup(ctx context.Context, group *types.OrderGroup) {
	logger := log.With().
		Str("component", "execution_engine").
		Str("group_id", group.GroupID).
		Str("symbol", group.Symbol).
		Str("side", string(group.Side)).
		Logger()

	for i := range group.Entries {
		e.mu.Lock()
		entry := &group.Entries[i]
		delay := time.Duration(entry.DelaySeconds) * time.Second
		e.mu.Unlock()

		if delay > 0 {
			select {
			case <-e.clock.After(delay):
			case <-ctx.Done():
				logger.Warn().Msg("group execution interrupted")
				e.finishGroup(group)
				return
			}
		}

		// A cancel may land while the delay runs; the status under the
		// lock is authoritative.
		e.mu.Lock()
		terminal := entry.Status.Terminal()
		e.mu.Unlock()
		if terminal {
			continue
		}

		if err := e.executeEntry(ctx, group, entry); err != nil {
			logger.Error().Err(err).Str("entry_id", entry.EntryID).Msg("entry failed")
			if types.IsKind(err, types.KindTradingHalted) {
				// Halt pre-empts the rest of the schedule.
				e.cancelRemaining(group, i)
				break
			}
		}
		e.persistEntry(entry)
	}

	e.finishGroup(group)

	logger.Info().
		Int64("filled_quantity", group.FilledQuantity()).
		Int64("total_quantity", group.TotalQuantity).
		Msg("group execution finished")
}

// executeEntry prices, submits and reconciles one child order, retrying
// transient gateway failures with exponential backoff. Confirmed fills
// are never retried.
func (e *Engine) executeEntry(ctx context.Context, group *types.OrderGroup, entry *types.OrderEntry) error {
	e.mu.Lock()
	terminal := entry.Status.Terminal()
	e.mu.Unlock()
	if terminal {
		return nil
	}

	if e.halt != nil && e.halt.Active() {
		return types.NewTradingHaltedError("circuit breaker active")
	}

	price := AdjustForSlippage(entry.LimitPrice, group.Side, e.cfg.SlippageRatio)
	price = RoundToTick(price, group.Side)

	orderType := types.OrderTypeLimit
	if e.calendar != nil && e.calendar.NearSessionEdge(e.clock.Now()) {
		orderType = types.OrderTypeMarket
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-e.clock.After(backoff):
			case <-ctx.Done():
				return types.NewTransientGatewayError(ctx.Err())
			}
		}

		result, err := e.gw.Submit(ctx, group.Symbol, group.Side, entry.Quantity, price, orderType)
		if err == nil {
			e.recordFill(group, entry, orderType, result)
			return nil
		}

		if types.IsKind(err, types.KindRejectedOrder) {
			e.markFailed(entry)
			return err
		}
		lastErr = err

		log.Warn().
			Err(err).
			Str("entry_id", entry.EntryID).
			Int("attempt", attempt+1).
			Msg("transient gateway failure, will retry")
	}

	e.markFailed(entry)
	return types.NewOrderFailedError(e.cfg.MaxRetries+1, lastErr)
}

// recordFill applies a confirmed fill to the entry, the ledger and the
// account. Filled quantity is authoritative even when the entry was
// cancelled while the submit was in flight.
func (e *Engine) recordFill(group *types.OrderGroup, entry *types.OrderEntry, orderType types.OrderType, result *gateway.SubmitResult) {
	e.mu.Lock()
	entry.GatewayOrderID = result.OrderID
	entry.OrderType = orderType
	entry.FilledQuantity += result.FilledQuantity
	entry.FilledPrice = result.FilledPrice
	if entry.Status != types.EntryCancelled {
		if entry.FilledQuantity < entry.Quantity {
			entry.Status = types.EntryPartial
		} else {
			entry.Status = types.EntryFilled
		}
	}
	e.mu.Unlock()

	qty, price := result.FilledQuantity, result.FilledPrice

	if group.Side == types.SideBuy {
		pos, err := e.ledger.OpenOrAdd(group.Symbol, qty, price)
		if err != nil {
			log.Error().Err(err).Str("symbol", group.Symbol).Msg("ledger update failed on buy fill")
			return
		}
		if e.exits != nil {
			takeProfit, stopLoss := e.exits.ExitThresholds(pos.AvgEntryPrice)
			e.ledger.SetExitLevels(group.Symbol, stopLoss, takeProfit)
		}
		e.persistPosition(group.Symbol)
		e.notify("position_opened", group, qty, price)
	} else {
		remaining, realized, err := e.ledger.ReduceOrClose(group.Symbol, qty, price)
		if err != nil {
			log.Error().Err(err).Str("symbol", group.Symbol).Msg("ledger update failed on sell fill")
			return
		}
		if e.account != nil {
			e.account.RecordTradeResult(realized)
		}
		if remaining == nil {
			e.deletePosition(group.Symbol)
		} else {
			e.persistPosition(group.Symbol)
		}
		e.notify("position_reduced", group, qty, price)
	}

	if e.account != nil {
		e.account.ApplyFill(group.Side, qty, price)
		e.account.Recompute(e.ledger.Snapshot().TotalValue)
	}
}

// CancelGroup cancels every live entry at the gateway and marks them
// CANCELLED locally regardless of gateway cancel success. Idempotent:
// cancelling a completed or already-cancelled group is a no-op.
func (e *Engine) CancelGroup(ctx context.Context, groupID string) (*types.OrderGroup, error) {
	e.mu.Lock()
	group, ok := e.active[groupID]
	if !ok {
		group, ok = e.completed[groupID]
	}
	e.mu.Unlock()

	if !ok {
		if e.store == nil {
			return nil, types.NewValidationError("unknown order group %s", groupID)
		}
		stored, err := e.store.GetGroup(groupID)
		if err != nil || stored == nil {
			return nil, types.NewValidationError("unknown order group %s", groupID)
		}
		group = stored
	}

	e.mu.Lock()
	var toCancel []string
	var marked []*types.OrderEntry
	for i := range group.Entries {
		entry := &group.Entries[i]
		if entry.Status.Terminal() {
			continue
		}
		if entry.GatewayOrderID != "" {
			toCancel = append(toCancel, entry.GatewayOrderID)
		}
		entry.Status = types.EntryCancelled
		marked = append(marked, entry)
	}
	e.mu.Unlock()

	for _, orderID := range toCancel {
		if _, err := e.gw.Cancel(ctx, orderID); err != nil {
			// Local cancellation already holds; the gateway result is advisory.
			log.Warn().Err(err).Str("gateway_order_id", orderID).Msg("gateway cancel failed")
		}
	}
	for _, entry := range marked {
		e.persistEntry(entry)
	}

	e.finishGroup(group)
	log.Info().Str("group_id", groupID).Msg("order group cancelled")
	return group, nil
}

// Group returns the live or persisted group by ID.
func (e *Engine) Group(groupID string) (*types.OrderGroup, error) {
	e.mu.Lock()
	group, ok := e.active[groupID]
	if !ok {
		group, ok = e.completed[groupID]
	}
	e.mu.Unlock()
	if ok {
		return group, nil
	}
	if e.store == nil {
		return nil, types.NewValidationError("unknown order group %s", groupID)
	}
	stored, err := e.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, types.NewValidationError("unknown order group %s", groupID)
	}
	return stored, nil
}

// LiquidatePosition exits a fraction of one position at market price,
// bypassing the split planner. Certainty of exit beats impact here.
func (e *Engine) LiquidatePosition(ctx context.Context, symbol string, fraction float64, reason string) error {
	pos, ok := e.ledger.Position(symbol)
	if !ok {
		return nil
	}

	qty := int64(math.Ceil(float64(pos.Quantity) * fraction))
	if qty <= 0 {
		return nil
	}
	if qty > pos.Quantity {
		qty = pos.Quantity
	}

	group := &types.OrderGroup{
		GroupID:       uuid.New().String(),
		Symbol:        symbol,
		Side:          types.SideSell,
		TotalQuantity: qty,
		Policy:        "liquidation",
		CreatedAt:     time.Now(),
		Entries: []types.OrderEntry{{
			EntryID:    uuid.New().String(),
			Quantity:   qty,
			LimitPrice: pos.CurrentPrice,
			OrderType:  types.OrderTypeMarket,
			Status:     types.EntryPending,
		}},
	}
	group.Entries[0].GroupID = group.GroupID

	log.Warn().
		Str("symbol", symbol).
		Int64("quantity", qty).
		Float64("fraction", fraction).
		Str("reason", reason).
		Msg("liquidating position")

	if e.store != nil {
		if err := e.store.CreateGroup(group); err != nil {
			log.Error().Err(err).Str("group_id", group.GroupID).Msg("failed to persist liquidation group")
		}
	}

	entry := &group.Entries[0]
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-e.clock.After(backoff):
			case <-ctx.Done():
				return types.NewTransientGatewayError(ctx.Err())
			}
		}

		result, err := e.gw.Submit(ctx, symbol, types.SideSell, qty, pos.CurrentPrice, types.OrderTypeMarket)
		if err == nil {
			e.recordFill(group, entry, types.OrderTypeMarket, result)
			e.persistEntry(entry)
			e.finishGroup(group)
			return nil
		}
		if types.IsKind(err, types.KindRejectedOrder) {
			e.markFailed(entry)
			e.finishGroup(group)
			return err
		}
		lastErr = err
	}

	e.markFailed(entry)
	e.finishGroup(group)
	return types.NewOrderFailedError(e.cfg.MaxRetries+1, lastErr)
}

// LiquidateAll exits the given fraction of every open position. Errors
// are collected so one failing symbol never shields the rest.
func (e *Engine) LiquidateAll(ctx context.Context, fraction float64, reason string) error {
	snap := e.ledger.Snapshot()
	var errs []error
	for i := range snap.Positions {
		if err := e.LiquidatePosition(ctx, snap.Positions[i].Symbol, fraction, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cancelRemaining marks the given and every later non-terminal entry
// CANCELLED when a halt pre-empts the rest of the schedule, so the group
// can still complete.
func (e *Engine) cancelRemaining(group *types.OrderGroup, from int) {
	e.mu.Lock()
	var marked []*types.OrderEntry
	for i := from; i < len(group.Entries); i++ {
		entry := &group.Entries[i]
		if entry.Status.Terminal() {
			continue
		}
		entry.Status = types.EntryCancelled
		marked = append(marked, entry)
	}
	e.mu.Unlock()

	for _, entry := range marked {
		e.persistEntry(entry)
	}
}

func (e *Engine) markFailed(entry *types.OrderEntry) {
	e.mu.Lock()
	if !entry.Status.Terminal() {
		entry.Status = types.EntryCancelled
	}
	e.mu.Unlock()
}

// finishGroup stamps completion once every entry is terminal and moves
// the group from the active set to the completed set, where cancel and
// lookup remain resolvable.
func (e *Engine) finishGroup(group *types.OrderGroup) {
	e.mu.Lock()
	complete := group.Complete()
	if complete && group.CompletedAt == nil {
		now := e.clock.Now()
		group.CompletedAt = &now
	}
	if complete {
		delete(e.active, group.GroupID)
		e.completed[group.GroupID] = group
	}
	e.mu.Unlock()

	if complete && e.store != nil {
		if err := e.store.UpdateGroup(group); err != nil {
			log.Error().Err(err).Str("group_id", group.GroupID).Msg("failed to persist group completion")
		}
	}
}

func (e *Engine) persistEntry(entry *types.OrderEntry) {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	snapshot := *entry
	e.mu.Unlock()
	if err := e.store.UpdateEntry(&snapshot); err != nil {
		log.Error().Err(err).Str("entry_id", entry.EntryID).Msg("failed to persist entry")
	}
}

func (e *Engine) persistPosition(symbol string) {
	if e.ledgerDB == nil {
		return
	}
	pos, ok := e.ledger.Position(symbol)
	if !ok {
		return
	}
	if err := e.ledgerDB.SavePosition(&pos); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("failed to persist position")
	}
}

func (e *Engine) deletePosition(symbol string) {
	if e.ledgerDB == nil {
		return
	}
	if err := e.ledgerDB.DeletePosition(symbol); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("failed to delete persisted position")
	}
}

func (e *Engine) notify(kind string, group *types.OrderGroup, qty int64, price float64) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(gateway.Event{
		Kind:    kind,
		Message: group.Symbol,
		Fields: map[string]interface{}{
			"group_id": group.GroupID,
			"side":     string(group.Side),
			"quantity": qty,
			"price":    price,
		},
		At: e.clock.Now(),
	})
}
