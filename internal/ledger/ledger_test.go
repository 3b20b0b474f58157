package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/exec-engine/internal/types"
)

func TestLedger_OpenOrAdd_AveragesIn(t *testing.T) {
	led := New()

	pos, err := led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.Quantity)
	assert.Equal(t, 50_000.0, pos.AvgEntryPrice)

	pos, err = led.OpenOrAdd("ACME", 50, 53_000)
	require.NoError(t, err)
	assert.Equal(t, int64(150), pos.Quantity)
	assert.InDelta(t, 51_000.0, pos.AvgEntryPrice, 1e-9)
	assert.Equal(t, 53_000.0, pos.CurrentPrice)
}

func TestLedger_OpenOrAdd_RejectsNonPositiveQuantity(t *testing.T) {
	led := New()

	_, err := led.OpenOrAdd("ACME", 0, 50_000)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
	assert.Equal(t, 0, led.OpenCount())
}

func TestLedger_ReduceOrClose_RealizesPnL(t *testing.T) {
	led := New()
	_, err := led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)

	remaining, realized, err := led.ReduceOrClose("ACME", 40, 52_000)
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, int64(60), remaining.Quantity)
	assert.InDelta(t, 80_000.0, realized, 1e-9)
	assert.InDelta(t, 80_000.0, led.RealizedPnL(), 1e-9)
}

func TestLedger_ReduceOrClose_FullCloseRemovesPosition(t *testing.T) {
	led := New()
	_, err := led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)

	remaining, realized, err := led.ReduceOrClose("ACME", 100, 49_000)
	require.NoError(t, err)
	assert.Nil(t, remaining)
	assert.InDelta(t, -100_000.0, realized, 1e-9)

	_, held := led.Position("ACME")
	assert.False(t, held)
	assert.Equal(t, 0, led.OpenCount())
}

func TestLedger_ReduceOrClose_OvercloseFailsWithoutMutation(t *testing.T) {
	led := New()
	_, err := led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)

	_, _, err = led.ReduceOrClose("ACME", 150, 52_000)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInsufficientPosition))

	pos, held := led.Position("ACME")
	require.True(t, held)
	assert.Equal(t, int64(100), pos.Quantity)
	assert.Equal(t, 0.0, led.RealizedPnL())
}

func TestLedger_ReduceOrClose_UnknownSymbol(t *testing.T) {
	led := New()

	_, _, err := led.ReduceOrClose("GLOBEX", 10, 1_000)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInsufficientPosition))
}

func TestLedger_Mark_UpdatesUnrealized(t *testing.T) {
	led := New()
	_, err := led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)

	led.Mark("ACME", 45_000)

	pos, held := led.Position("ACME")
	require.True(t, held)
	assert.Equal(t, 45_000.0, pos.CurrentPrice)
	assert.InDelta(t, -500_000.0, pos.UnrealizedPnL(), 1e-9)
	assert.InDelta(t, -0.10, pos.UnrealizedReturn(), 1e-9)
}

func TestLedger_Mark_UnknownSymbolIgnored(t *testing.T) {
	led := New()
	led.Mark("GLOBEX", 1_000)
	assert.Equal(t, 0, led.OpenCount())
}

func TestLedger_SetExitLevels(t *testing.T) {
	led := New()
	_, err := led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)

	led.SetExitLevels("ACME", 48_500, 52_500)

	pos, held := led.Position("ACME")
	require.True(t, held)
	assert.Equal(t, 48_500.0, pos.StopLossPrice)
	assert.Equal(t, 52_500.0, pos.TakeProfitPrice)
}

func TestLedger_Snapshot_SortedWithTotals(t *testing.T) {
	led := New()
	_, err := led.OpenOrAdd("GLOBEX", 200, 12_000)
	require.NoError(t, err)
	_, err = led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)
	led.Mark("ACME", 51_000)

	snap := led.Snapshot()
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "ACME", snap.Positions[0].Symbol)
	assert.Equal(t, "GLOBEX", snap.Positions[1].Symbol)
	assert.InDelta(t, 100*51_000.0+200*12_000.0, snap.TotalValue, 1e-9)
	assert.InDelta(t, 100_000.0, snap.TotalUnrealized, 1e-9)
}

func TestLedger_Snapshot_IsACopy(t *testing.T) {
	led := New()
	_, err := led.OpenOrAdd("ACME", 100, 50_000)
	require.NoError(t, err)

	snap := led.Snapshot()
	snap.Positions[0].Quantity = 1

	pos, _ := led.Position("ACME")
	assert.Equal(t, int64(100), pos.Quantity)
}

func TestLedger_Restore_SkipsEmptyPositions(t *testing.T) {
	led := New()
	led.Restore([]types.Position{
		{Symbol: "ACME", Quantity: 100, AvgEntryPrice: 50_000, CurrentPrice: 50_000},
		{Symbol: "GLOBEX", Quantity: 0, AvgEntryPrice: 12_000},
	})

	assert.Equal(t, 1, led.OpenCount())
	pos, held := led.Position("ACME")
	require.True(t, held)
	assert.Equal(t, int64(100), pos.Quantity)
}
