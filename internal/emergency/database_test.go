package emergency

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLog(t *testing.T) *Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Event{}))
	return NewDatabase(db)
}

func appendTestEvent(t *testing.T, store *Database, level EventLevel, detectedAt time.Time) {
	t.Helper()
	require.NoError(t, store.Append(&Event{
		EventID:     uuid.New().String(),
		Kind:        KindPortfolioLoss,
		Level:       level,
		DetectedAt:  detectedAt,
		Payload:     `{"loss":-0.12}`,
		ActionTaken: "50% liquidation",
	}))
}

func TestDatabase_EventsSince(t *testing.T) {
	store := newTestLog(t)
	now := time.Now()

	appendTestEvent(t, store, LevelWarning, now.Add(-48*time.Hour))
	appendTestEvent(t, store, LevelCritical, now.Add(-2*time.Hour))
	appendTestEvent(t, store, LevelEmergency, now.Add(-time.Hour))

	events, err := store.EventsSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, LevelEmergency, events[0].Level)
	assert.Equal(t, LevelCritical, events[1].Level)
}

func TestDatabase_LatestByLevel(t *testing.T) {
	store := newTestLog(t)
	now := time.Now()

	appendTestEvent(t, store, LevelCritical, now.Add(-3*time.Hour))
	appendTestEvent(t, store, LevelCritical, now.Add(-time.Hour))

	latest, err := store.LatestByLevel(LevelCritical)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.WithinDuration(t, now.Add(-time.Hour), latest.DetectedAt, time.Second)

	missing, err := store.LatestByLevel(LevelEmergency)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
