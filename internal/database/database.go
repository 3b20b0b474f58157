package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/exec-engine/internal/emergency"
	"github.com/ksred/exec-engine/internal/types"
)

// NewDatabase opens the sqlite store and migrates the core-owned state:
// order groups, position snapshots, and the emergency event log.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.OrderGroup{},
		&types.OrderEntry{},
		&types.Position{},
		&emergency.Event{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
