package splitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/exec-engine/internal/types"
)

func sumQuantities(plan []ChildOrder) int64 {
	var total int64
	for _, c := range plan {
		total += c.Quantity
	}
	return total
}

func TestPlan_LowImpactGoesImmediate(t *testing.T) {
	// 1000 shares against 50,000 ADV is 2% impact, under the 5% threshold.
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      1000,
		CurrentPrice:   10_000,
		AvgDailyVolume: 50_000,
		Policy:         PolicyAuto,
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, plan, 1)
	assert.Equal(t, int64(1000), plan[0].Quantity)
	assert.Equal(t, time.Duration(0), plan[0].Delay)
	assert.Equal(t, 0.0, plan[0].PriceOffsetRatio)
}

func TestPlan_HighImpactGoesAdaptive(t *testing.T) {
	// 3000 against 50,000 ADV is 6% impact: ceil(0.06/0.05) = 2 children.
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      3000,
		CurrentPrice:   10_000,
		AvgDailyVolume: 50_000,
		Policy:         PolicyAuto,
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, plan, 2)
	assert.Equal(t, int64(3000), sumQuantities(plan))
	assert.Equal(t, time.Duration(0), plan[0].Delay)
	for _, child := range plan[1:] {
		assert.GreaterOrEqual(t, child.Delay, 10*time.Second)
		assert.LessOrEqual(t, child.Delay, 300*time.Second)
	}
}

func TestPlan_AdaptiveChildCap(t *testing.T) {
	// 60% impact wants 12 children; the cap holds it at 10.
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      30_000,
		CurrentPrice:   10_000,
		AvgDailyVolume: 50_000,
		Policy:         PolicyLiquidityAdaptive,
	}, DefaultConfig())
	require.NoError(t, err)

	assert.Len(t, plan, 10)
	assert.Equal(t, int64(30_000), sumQuantities(plan))
}

func TestPlan_AdaptiveRemainderFirst(t *testing.T) {
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideSell,
		TargetQty:      3001,
		CurrentPrice:   10_000,
		AvgDailyVolume: 50_000,
		Policy:         PolicyLiquidityAdaptive,
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, plan, 2)
	assert.Equal(t, int64(1501), plan[0].Quantity)
	assert.Equal(t, int64(1500), plan[1].Quantity)
}

func TestPlan_TWAP(t *testing.T) {
	cfg := DefaultConfig()
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      1005,
		CurrentPrice:   10_000,
		AvgDailyVolume: 1_000_000,
		Policy:         PolicyTWAP,
	}, cfg)
	require.NoError(t, err)

	require.Len(t, plan, 10)
	assert.Equal(t, int64(1005), sumQuantities(plan))
	assert.Equal(t, time.Duration(0), plan[0].Delay)
	for i := 1; i < len(plan); i++ {
		assert.Equal(t, 60*time.Second, plan[i].Delay)
		assert.InDelta(t, float64(i)*cfg.PriceOffsetStep, plan[i].PriceOffsetRatio, 1e-12)
	}
}

func TestPlan_TWAPTinyQuantity(t *testing.T) {
	// Fewer shares than slices: one share per slice.
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      3,
		CurrentPrice:   10_000,
		AvgDailyVolume: 1_000_000,
		Policy:         PolicyTWAP,
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, plan, 3)
	for _, child := range plan {
		assert.Equal(t, int64(1), child.Quantity)
	}
}

func TestPlan_VWAPWeightsUShaped(t *testing.T) {
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      10_000,
		CurrentPrice:   10_000,
		AvgDailyVolume: 1_000_000,
		Policy:         PolicyVWAP,
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, plan, 8)
	assert.Equal(t, int64(10_000), sumQuantities(plan))

	// Open heavy, midday thin, close heaviest.
	assert.Equal(t, int64(1800), plan[0].Quantity)
	assert.Equal(t, int64(800), plan[3].Quantity)
	assert.Equal(t, int64(2400), plan[7].Quantity)
	assert.Greater(t, plan[7].Quantity, plan[0].Quantity)

	assert.Equal(t, time.Duration(0), plan[0].Delay)
	for _, child := range plan[1:] {
		assert.Equal(t, 90*time.Second, child.Delay)
	}
}

func TestPlan_VWAPRoundingDriftOnLastSlice(t *testing.T) {
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      997,
		CurrentPrice:   10_000,
		AvgDailyVolume: 1_000_000,
		Policy:         PolicyVWAP,
	}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, int64(997), sumQuantities(plan))
}

func TestPlan_Iceberg(t *testing.T) {
	// ADV 390,000 means 1000/min; 5% slices of 50 shares.
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      500,
		CurrentPrice:   10_000,
		AvgDailyVolume: 390_000,
		Policy:         PolicyIceberg,
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, plan, 10)
	assert.Equal(t, int64(500), sumQuantities(plan))
	for i, child := range plan {
		assert.Equal(t, int64(50), child.Quantity)
		if i == 0 {
			assert.Equal(t, time.Duration(0), child.Delay)
		} else {
			assert.Equal(t, 30*time.Second, child.Delay)
		}
	}
}

func TestPlan_IcebergRemainderFoldsIntoLastChild(t *testing.T) {
	// 50-share slices cap at 20 children; the excess lands on the last.
	plan, err := Plan(Request{
		Symbol:         "ACME",
		Side:           types.SideBuy,
		TargetQty:      1500,
		CurrentPrice:   10_000,
		AvgDailyVolume: 390_000,
		Policy:         PolicyIceberg,
	}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, plan, 20)
	assert.Equal(t, int64(1500), sumQuantities(plan))
	assert.Equal(t, int64(550), plan[19].Quantity)
}

func TestPlan_SumInvariantAcrossPolicies(t *testing.T) {
	policies := []Policy{
		PolicyImmediate, PolicyLiquidityAdaptive, PolicyTWAP, PolicyVWAP, PolicyIceberg,
	}
	quantities := []int64{1, 7, 997, 3000, 123_456}

	for _, policy := range policies {
		for _, qty := range quantities {
			plan, err := Plan(Request{
				Symbol:         "ACME",
				Side:           types.SideBuy,
				TargetQty:      qty,
				CurrentPrice:   10_000,
				AvgDailyVolume: 50_000,
				Policy:         policy,
			}, DefaultConfig())
			require.NoError(t, err, "%s qty %d", policy, qty)
			assert.Equal(t, qty, sumQuantities(plan), "%s qty %d", policy, qty)
		}
	}
}

func TestPlan_RejectsBadInput(t *testing.T) {
	cfg := DefaultConfig()

	_, err := Plan(Request{TargetQty: 0, AvgDailyVolume: 1000}, cfg)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))

	_, err = Plan(Request{TargetQty: 100, AvgDailyVolume: 0}, cfg)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAuto, policy)

	policy, err = ParsePolicy("twap")
	require.NoError(t, err)
	assert.Equal(t, PolicyTWAP, policy)

	_, err = ParsePolicy("aggressive")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
}
