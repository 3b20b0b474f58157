package execution

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ksred/exec-engine/internal/types"
)

// Database persists order groups and their entries so in-flight work can
// be reconciled after a restart.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateGroup persists a new group with all its entries.
func (d *Database) CreateGroup(group *types.OrderGroup) error {
	return d.db.Create(group).Error
}

// UpdateGroup persists group-level fields. Entries are written
// individually as they transition.
func (d *Database) UpdateGroup(group *types.OrderGroup) error {
	return d.db.Model(&types.OrderGroup{}).
		Where("group_id = ?", group.GroupID).
		Updates(map[string]interface{}{
			"completed_at": group.CompletedAt,
			"updated_at":   time.Now(),
		}).Error
}

// UpdateEntry persists one entry's state transition.
func (d *Database) UpdateEntry(entry *types.OrderEntry) error {
	return d.db.Model(&types.OrderEntry{}).
		Where("entry_id = ?", entry.EntryID).
		Updates(map[string]interface{}{
			"status":           entry.Status,
			"filled_quantity":  entry.FilledQuantity,
			"filled_price":     entry.FilledPrice,
			"order_type":       entry.OrderType,
			"gateway_order_id": entry.GatewayOrderID,
			"updated_at":       time.Now(),
		}).Error
}

// GetGroup loads a group with its entries. Returns nil when not found.
func (d *Database) GetGroup(groupID string) (*types.OrderGroup, error) {
	var group types.OrderGroup
	if err := d.db.Preload("Entries").Where("group_id = ?", groupID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

// IncompleteGroups loads groups whose schedules had not finished. Used
// at startup: their pending entries are closed out because scheduled
// continuations do not survive a restart.
func (d *Database) IncompleteGroups() ([]types.OrderGroup, error) {
	var groups []types.OrderGroup
	if err := d.db.Preload("Entries").Where("completed_at IS NULL").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// CloseOutGroup marks every non-terminal entry CANCELLED and stamps the
// group complete. Recorded fills are left untouched.
func (d *Database) CloseOutGroup(group *types.OrderGroup) error {
	now := time.Now()

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}

	if err := tx.Model(&types.OrderEntry{}).
		Where("group_id = ? AND status IN ?", group.GroupID,
			[]types.EntryStatus{types.EntryPending, types.EntryPartial}).
		Updates(map[string]interface{}{
			"status":     types.EntryCancelled,
			"updated_at": now,
		}).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Model(&types.OrderGroup{}).
		Where("group_id = ?", group.GroupID).
		Updates(map[string]interface{}{
			"completed_at": &now,
			"updated_at":   now,
		}).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
