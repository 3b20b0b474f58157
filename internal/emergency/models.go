package emergency

import (
	"time"

	"gorm.io/gorm"
)

type EventKind string

const (
	KindMarketCrash   EventKind = "MARKET_CRASH"
	KindPortfolioLoss EventKind = "PORTFOLIO_LOSS"
	KindPositionLoss  EventKind = "POSITION_LOSS"
	KindSystemError   EventKind = "SYSTEM_ERROR"
	KindAPIFailure    EventKind = "API_FAILURE"
)

type EventLevel string

const (
	LevelWarning   EventLevel = "WARNING"
	LevelCritical  EventLevel = "CRITICAL"
	LevelEmergency EventLevel = "EMERGENCY"
)

// Event is one appended record of the emergency log. Immutable once
// written; ActionTaken is set in the same append, never edited after.
type Event struct {
	gorm.Model  `json:"-"`
	EventID     string     `gorm:"uniqueIndex" json:"event_id"`
	Kind        EventKind  `gorm:"index" json:"kind"`
	Level       EventLevel `gorm:"index" json:"level"`
	DetectedAt  time.Time  `json:"detected_at"`
	Payload     string     `json:"payload"`
	ActionTaken string     `json:"action_taken,omitempty"`
}

// BreakerStatus is the externally visible circuit-breaker state.
type BreakerStatus struct {
	Active       bool       `json:"active"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	DeactivateAt *time.Time `json:"deactivate_at,omitempty"`
}
