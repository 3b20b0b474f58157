package ledger

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ksred/exec-engine/internal/types"
)

// Database persists position snapshots so the ledger can be rebuilt
// after a restart. The in-memory ledger stays authoritative; this is
// crash-resume state only.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// SavePosition upserts the persisted row for a position.
func (d *Database) SavePosition(pos *types.Position) error {
	return d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity", "avg_entry_price", "current_price",
			"stop_loss_price", "take_profit_price", "updated_at",
		}),
	}).Create(pos).Error
}

// DeletePosition removes the persisted row once a position closes.
func (d *Database) DeletePosition(symbol string) error {
	return d.db.Where("symbol = ?", symbol).Delete(&types.Position{}).Error
}

// OpenPositions loads all persisted positions for startup restore.
func (d *Database) OpenPositions() ([]types.Position, error) {
	var positions []types.Position
	if err := d.db.Where("quantity > 0").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}
