// Command simulation runs the execution core end to end against the
// simulated gateways: a batch of signals, a large order that splits, a
// cancellation, and a market shock that trips the emergency monitor.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/emergency"
	"github.com/ksred/exec-engine/internal/engine"
	"github.com/ksred/exec-engine/internal/execution"
	"github.com/ksred/exec-engine/internal/gateway"
	"github.com/ksred/exec-engine/internal/ledger"
	"github.com/ksred/exec-engine/internal/risk"
	"github.com/ksred/exec-engine/internal/scheduler"
	"github.com/ksred/exec-engine/internal/splitter"
	"github.com/ksred/exec-engine/internal/types"
)

const initialCapital = 10_000_000

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := scheduler.NewRealClock()

	orderGW := gateway.NewSimGateway()
	marketGW := gateway.NewSimMarketData()
	marketGW.SetPrice("ACME", 50_000)
	marketGW.SetVolume("ACME", 500_000)
	marketGW.SetPrice("GLOBEX", 12_000)
	marketGW.SetVolume("GLOBEX", 8_000)

	riskCtrl, err := risk.NewController(risk.DefaultModeConfigs(), risk.DefaultLimits(), initialCapital, clock)
	if err != nil {
		zlog.Fatal().Err(err).Msg("risk controller")
	}

	led := ledger.New()
	breaker := emergency.NewCircuitBreaker(clock)

	exec := execution.NewEngine(
		execution.DefaultConfig(), orderGW, gateway.NewUSEquityCalendar(), gateway.LogSink{},
		led, nil, nil, riskCtrl, riskCtrl, breaker, clock,
	)

	monitorCfg := emergency.DefaultConfig()
	monitorCfg.Interval = 500 * time.Millisecond
	monitor := emergency.NewMonitor(
		monitorCfg, led, exec, marketGW, riskCtrl,
		breaker, nil, gateway.LogSink{}, clock,
	)
	go monitor.Start(ctx)

	// Shorten child delays so the split schedule plays out quickly.
	splitterCfg := splitter.DefaultConfig()
	splitterCfg.MinAdaptiveDelay = 100 * time.Millisecond
	splitterCfg.MaxAdaptiveDelay = 300 * time.Millisecond

	service := engine.NewService(
		ctx, splitterCfg, riskCtrl, led, nil,
		exec, nil, nil, monitor, marketGW,
	)

	fmt.Println("--- submitting signals ---")

	signals := []types.Signal{
		{Symbol: "ACME", Side: types.SideBuy, Score: 0.85, Confidence: types.ConfidenceHigh, SuggestedPrice: 50_000},
		{Symbol: "GLOBEX", Side: types.SideBuy, Score: 0.75, Confidence: types.ConfidenceMedium, SuggestedPrice: 12_000},
		{Symbol: "ACME", Side: types.SideBuy, Score: 0.40, Confidence: types.ConfidenceLow, SuggestedPrice: 50_000}, // rejected: score
	}

	for _, sig := range signals {
		group, err := service.SubmitSignal(ctx, sig)
		if err != nil {
			fmt.Printf("signal %s %s rejected: %v\n", sig.Side, sig.Symbol, err)
			continue
		}
		fmt.Printf("signal %s %s accepted: group %s, %d children, %d shares\n",
			sig.Side, sig.Symbol, group.GroupID, len(group.Entries), group.TotalQuantity)
	}

	// Let split schedules and fills play out.
	time.Sleep(2 * time.Second)

	status := service.GetPortfolioSnapshot()
	fmt.Printf("\n--- portfolio ---\ncash %.0f, positions %d, mode %s\n",
		status.Cash, len(status.Snapshot.Positions), status.Mode)
	for _, pos := range status.Snapshot.Positions {
		fmt.Printf("  %s: %d @ %.0f\n", pos.Symbol, pos.Quantity, pos.AvgEntryPrice)
	}

	fmt.Println("\n--- market shock ---")
	marketGW.SetPrice("ACME", 40_000) // -20% on the position
	marketGW.SetBenchmarkChangePct(-4.2)

	time.Sleep(2 * time.Second)

	status = service.GetPortfolioSnapshot()
	fmt.Printf("\n--- after shock ---\ncash %.0f, positions %d, mode %s, breaker active %v\n",
		status.Cash, len(status.Snapshot.Positions), status.Mode, status.CircuitBreaker.Active)

	if _, err := service.SubmitSignal(ctx, types.Signal{
		Symbol: "ACME", Side: types.SideBuy, Score: 0.95,
		Confidence: types.ConfidenceHigh, SuggestedPrice: 40_000,
	}); err != nil {
		fmt.Printf("post-shock signal rejected: %v\n", err)
	}

	fmt.Println("\nsimulation complete")
}
