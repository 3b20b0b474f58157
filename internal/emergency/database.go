package emergency

import (
	"time"

	"gorm.io/gorm"
)

// Database is the append-only emergency event log.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Append records an event. Events are never updated or deleted.
func (d *Database) Append(event *Event) error {
	return d.db.Create(event).Error
}

// EventsSince returns events detected after the cutoff, newest first.
func (d *Database) EventsSince(cutoff time.Time) ([]Event, error) {
	var events []Event
	if err := d.db.Where("detected_at >= ?", cutoff).
		Order("detected_at DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// LatestByLevel returns the most recent event at the given level, or nil.
func (d *Database) LatestByLevel(level EventLevel) (*Event, error) {
	var event Event
	err := d.db.Where("level = ?", level).
		Order("detected_at DESC").
		First(&event).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
