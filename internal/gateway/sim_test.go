package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/exec-engine/internal/types"
)

func TestSimGateway_SubmitFills(t *testing.T) {
	gw := NewSimGateway()
	gw.MinLatency = 0
	gw.MaxLatency = 0

	result, err := gw.Submit(context.Background(), "ACME", types.SideBuy, 100, 50_000, types.OrderTypeLimit)
	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, int64(100), result.FilledQuantity)
	assert.Equal(t, 50_000.0, result.FilledPrice)
}

func TestSimGateway_FailureRate(t *testing.T) {
	gw := NewSimGateway()
	gw.MinLatency = 0
	gw.MaxLatency = 0
	gw.SuccessRate = 0

	_, err := gw.Submit(context.Background(), "ACME", types.SideBuy, 100, 50_000, types.OrderTypeLimit)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindTransientGateway))
}

func TestSimGateway_Cancel(t *testing.T) {
	gw := NewSimGateway()
	gw.MinLatency = 0
	gw.MaxLatency = 0

	result, err := gw.Submit(context.Background(), "ACME", types.SideBuy, 100, 50_000, types.OrderTypeLimit)
	require.NoError(t, err)

	ok, err := gw.Cancel(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSimMarketData_UnknownSymbol(t *testing.T) {
	market := NewSimMarketData()

	_, err := market.CurrentPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindTransientGateway))

	_, err = market.AvgDailyVolume(context.Background(), "NOPE")
	require.Error(t, err)
}

func TestSimMarketData_RoundTrip(t *testing.T) {
	market := NewSimMarketData()
	market.SetPrice("ACME", 50_000)
	market.SetVolume("ACME", 390_000)
	market.SetBenchmarkChangePct(-1.2)

	price, err := market.CurrentPrice(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, 50_000.0, price)

	vol, err := market.AvgDailyVolume(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, int64(390_000), vol)

	pct, err := market.BenchmarkChangePct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1.2, pct)
}

func TestSessionCalendar_NearSessionEdge(t *testing.T) {
	calendar := &SessionCalendar{
		Location:  time.UTC,
		Open:      9*time.Hour + 30*time.Minute,
		Close:     16 * time.Hour,
		EdgeWidth: 10 * time.Minute,
	}

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		offset time.Duration
		want   bool
	}{
		{9*time.Hour + 25*time.Minute, true},  // just before the open
		{9*time.Hour + 35*time.Minute, true},  // just after the open
		{12 * time.Hour, false},               // midday
		{15*time.Hour + 49*time.Minute, false},
		{15*time.Hour + 55*time.Minute, true}, // closing window
		{16 * time.Hour, true},                // the close itself
		{17 * time.Hour, false},               // after hours
	}
	for _, tc := range cases {
		got := calendar.NearSessionEdge(day.Add(tc.offset))
		assert.Equal(t, tc.want, got, "offset %s", tc.offset)
	}
}
