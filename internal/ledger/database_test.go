package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/exec-engine/internal/types"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Position{}))
	return NewDatabase(db)
}

func TestDatabase_SavePositionUpserts(t *testing.T) {
	store := newTestDatabase(t)

	pos := &types.Position{
		Symbol:        "ACME",
		Quantity:      100,
		AvgEntryPrice: 50_000,
		CurrentPrice:  50_000,
		OpenedAt:      time.Now(),
	}
	require.NoError(t, store.SavePosition(pos))

	// Second save for the same symbol updates in place.
	pos.Quantity = 150
	pos.AvgEntryPrice = 51_000
	require.NoError(t, store.SavePosition(pos))

	positions, err := store.OpenPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(150), positions[0].Quantity)
	assert.Equal(t, 51_000.0, positions[0].AvgEntryPrice)
}

func TestDatabase_DeletePosition(t *testing.T) {
	store := newTestDatabase(t)

	require.NoError(t, store.SavePosition(&types.Position{
		Symbol: "ACME", Quantity: 100, AvgEntryPrice: 50_000, CurrentPrice: 50_000,
	}))
	require.NoError(t, store.DeletePosition("ACME"))

	positions, err := store.OpenPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestDatabase_RestoreRoundTrip(t *testing.T) {
	store := newTestDatabase(t)

	require.NoError(t, store.SavePosition(&types.Position{
		Symbol: "ACME", Quantity: 100, AvgEntryPrice: 50_000, CurrentPrice: 48_000,
	}))
	require.NoError(t, store.SavePosition(&types.Position{
		Symbol: "GLOBEX", Quantity: 200, AvgEntryPrice: 12_000, CurrentPrice: 12_500,
	}))

	positions, err := store.OpenPositions()
	require.NoError(t, err)

	led := New()
	led.Restore(positions)

	assert.Equal(t, 2, led.OpenCount())
	pos, held := led.Position("ACME")
	require.True(t, held)
	assert.Equal(t, 48_000.0, pos.CurrentPrice)
}
