// Package engine is the facade collaborators talk to: it runs the
// submission path (risk gate, sizing, split planning, execution) and
// exposes the portfolio, the emergency log, and the operator controls.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/emergency"
	"github.com/ksred/exec-engine/internal/execution"
	"github.com/ksred/exec-engine/internal/gateway"
	"github.com/ksred/exec-engine/internal/ledger"
	"github.com/ksred/exec-engine/internal/risk"
	"github.com/ksred/exec-engine/internal/splitter"
	"github.com/ksred/exec-engine/internal/types"
)

// Service wires the execution core together. Construct once in main and
// pass down; there is no hidden global state.
type Service struct {
	baseCtx     context.Context
	splitterCfg splitter.Config
	risk        *risk.Controller
	ledger      *ledger.Ledger
	ledgerDB    *ledger.Database
	exec        *execution.Engine
	execDB      *execution.Database
	emergencyDB *emergency.Database
	monitor     *emergency.Monitor
	market      gateway.MarketDataGateway
}

func NewService(
	baseCtx context.Context,
	splitterCfg splitter.Config,
	riskCtrl *risk.Controller,
	led *ledger.Ledger,
	ledgerDB *ledger.Database,
	exec *execution.Engine,
	execDB *execution.Database,
	emergencyDB *emergency.Database,
	monitor *emergency.Monitor,
	market gateway.MarketDataGateway,
) *Service {
	return &Service{
		baseCtx:     baseCtx,
		splitterCfg: splitterCfg,
		risk:        riskCtrl,
		ledger:      led,
		ledgerDB:    ledgerDB,
		exec:        exec,
		execDB:      execDB,
		emergencyDB: emergencyDB,
		monitor:     monitor,
		market:      market,
	}
}

// Resume rebuilds state after a restart: open positions come back from
// the store, and groups whose schedules were cut off are closed out.
// Scheduled continuations do not survive a crash; any recorded fill is
// authoritative and already reflected in the persisted positions.
func (s *Service) Resume() error {
	if s.ledgerDB != nil {
		positions, err := s.ledgerDB.OpenPositions()
		if err != nil {
			return err
		}
		s.ledger.Restore(positions)
	}

	if s.execDB != nil {
		groups, err := s.execDB.IncompleteGroups()
		if err != nil {
			return err
		}
		for i := range groups {
			if err := s.execDB.CloseOutGroup(&groups[i]); err != nil {
				return err
			}
			log.Warn().
				Str("group_id", groups[i].GroupID).
				Msg("closed out interrupted order group on resume")
		}
	}

	s.risk.Recompute(s.ledger.Snapshot().TotalValue)
	return nil
}

// SubmitSignal runs the full submission path for one approved signal.
// Rejections come back as tagged errors; accepted signals return the
// order group, which then executes asynchronously.
func (s *Service) SubmitSignal(ctx context.Context, sig types.Signal) (*types.OrderGroup, error) {
	logger := log.With().
		Str("component", "engine").
		Str("symbol", sig.Symbol).
		Str("side", string(sig.Side)).
		Float64("score", sig.Score).
		Logger()

	if sig.Side != types.SideBuy && sig.Side != types.SideSell {
		return nil, types.NewValidationError("invalid side %q", sig.Side)
	}

	requested, err := splitter.ParsePolicy(sig.Policy)
	if err != nil {
		return nil, err
	}

	if ok, reason := s.risk.CanTrade(); !ok {
		logger.Warn().Str("reason", reason).Msg("signal rejected by trading gate")
		return nil, types.NewValidationError("trading disabled: %s", reason)
	}

	if err := s.risk.ApproveSignal(sig.Score, sig.Confidence); err != nil {
		logger.Info().Err(err).Msg("signal rejected by score gate")
		return nil, err
	}

	mode, modeCfg := s.risk.ActiveConfig()

	price := sig.SuggestedPrice
	if price <= 0 {
		current, err := s.market.CurrentPrice(ctx, sig.Symbol)
		if err != nil {
			return nil, err
		}
		price = current
	}

	var qty int64
	if sig.Side == types.SideBuy {
		if _, held := s.ledger.Position(sig.Symbol); !held &&
			s.ledger.OpenCount() >= modeCfg.MaxOpenPositions {
			return nil, types.NewValidationError("max open positions reached (%d)", modeCfg.MaxOpenPositions)
		}
		qty = s.risk.PositionSize(price, s.risk.Cash())
		if qty <= 0 {
			return nil, types.NewValidationError("insufficient cash for symbol %s at %.2f", sig.Symbol, price)
		}
	} else {
		pos, held := s.ledger.Position(sig.Symbol)
		if !held {
			return nil, types.NewInsufficientPositionError(sig.Symbol, 0, 0)
		}
		qty = pos.Quantity
	}

	adv, err := s.market.AvgDailyVolume(ctx, sig.Symbol)
	if err != nil {
		return nil, err
	}

	plan, err := splitter.Plan(splitter.Request{
		Symbol:         sig.Symbol,
		Side:           sig.Side,
		TargetQty:      qty,
		CurrentPrice:   price,
		AvgDailyVolume: adv,
		Policy:         requested,
	}, s.splitterCfg)
	if err != nil {
		return nil, err
	}

	policy := requested
	if policy == splitter.PolicyAuto {
		policy = splitter.PolicyImmediate
		if len(plan) > 1 {
			policy = splitter.PolicyLiquidityAdaptive
		}
	}
	group := execution.NewGroup(sig.Symbol, sig.Side, qty, price, policy, plan)

	// Group execution outlives the HTTP request.
	if err := s.exec.Execute(s.baseCtx, group); err != nil {
		return nil, err
	}

	logger.Info().
		Str("group_id", group.GroupID).
		Str("mode", string(mode)).
		Int64("quantity", qty).
		Int("children", len(plan)).
		Msg("signal accepted")

	return group, nil
}

// OrderGroup returns a live or persisted group by ID.
func (s *Service) OrderGroup(groupID string) (*types.OrderGroup, error) {
	return s.exec.Group(groupID)
}

// CancelOrderGroup cancels a group. Idempotent.
func (s *Service) CancelOrderGroup(ctx context.Context, groupID string) (*types.OrderGroup, error) {
	return s.exec.CancelGroup(ctx, groupID)
}

// PortfolioStatus is the full portfolio view returned to collaborators.
type PortfolioStatus struct {
	Snapshot       types.PortfolioSnapshot `json:"snapshot"`
	Cash           float64                 `json:"cash"`
	ReturnRate     float64                 `json:"return_rate"`
	RealizedPnL    float64                 `json:"realized_pnl"`
	Mode           risk.Mode               `json:"risk_mode"`
	ModeOverride   *risk.Mode              `json:"risk_mode_override,omitempty"`
	CircuitBreaker emergency.BreakerStatus `json:"circuit_breaker"`
	Unresolved     bool                    `json:"unresolved_emergency"`
}

// GetPortfolioSnapshot returns current positions, capital and posture.
func (s *Service) GetPortfolioSnapshot() PortfolioStatus {
	snap := s.ledger.Snapshot()
	mode, _ := s.risk.ActiveConfig()
	return PortfolioStatus{
		Snapshot:       snap,
		Cash:           s.risk.Cash(),
		ReturnRate:     s.risk.ReturnRate(),
		RealizedPnL:    s.ledger.RealizedPnL(),
		Mode:           mode,
		ModeOverride:   s.risk.Override(),
		CircuitBreaker: s.monitor.Breaker().Status(),
		Unresolved:     s.monitor.Unresolved(),
	}
}

// ForceLiquidateAll exits every position at market on operator request.
func (s *Service) ForceLiquidateAll(ctx context.Context, reason string) error {
	log.Warn().Str("reason", reason).Msg("operator forced full liquidation")

	err := s.exec.LiquidateAll(ctx, 1.0, reason)

	payload := map[string]interface{}{"reason": reason, "source": "operator"}
	action := "manual full liquidation"
	if err != nil {
		payload["error"] = err.Error()
		action = "manual full liquidation (incomplete)"
	}
	s.monitor.RecordManual(emergency.KindPortfolioLoss, emergency.LevelEmergency, payload, action)

	return err
}

// GetEmergencyLog returns events from the last sinceHours hours.
func (s *Service) GetEmergencyLog(sinceHours int) ([]emergency.Event, error) {
	if sinceHours <= 0 {
		sinceHours = 24
	}
	cutoff := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
	return s.emergencyDB.EventsSince(cutoff)
}

// SetRiskModeOverride pins or (with nil) releases the risk mode.
func (s *Service) SetRiskModeOverride(mode *string) error {
	if mode == nil {
		s.risk.SetOverride(nil)
		return nil
	}
	parsed, err := risk.ParseMode(*mode)
	if err != nil {
		return err
	}
	s.risk.SetOverride(&parsed)
	return nil
}
