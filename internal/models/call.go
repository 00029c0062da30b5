package models

import "time"

// Call statuses. DISPATCHING drives the recovery query; the rest are
// terminal (or near-terminal) routing outcomes.
const (
	CallStatusNew           = "NEW"
	CallStatusDispatching   = "DISPATCHING"
	CallStatusConfirmed     = "DISPATCHED_CONFIRMED"
	CallStatusNoAck         = "DISPATCHED_NO_ACK"
	CallStatusNeedsReview   = "NEEDS_REVIEW"
	CallStatusUnassigned    = "UNASSIGNED"
)

// Call is one inbound after-hours call awaiting (or past) dispatch.
type Call struct {
	ID             string  `gorm:"primaryKey;size:64"`
	SourceCallID   string  `gorm:"size:64;index"` // external correlation id, not unique across sources
	CallerPhone    string  `gorm:"size:24"`
	ToNumber       string  `gorm:"size:24;index"` // dispatch number the caller dialed
	IssueSummary   string  `gorm:"type:text"`
	Transcript     string  `gorm:"type:mediumtext"`
	EmergencyLevel string  `gorm:"size:16"` // HIGH, MEDIUM, LOW (uppercase only)
	EmergencyNote  string  `gorm:"size:256"`
	Status         string  `gorm:"size:24;default:NEW;index"`
	BusinessID     *string `gorm:"size:32;index"`
	AckedBy        string  `gorm:"size:32"` // roster entry that acknowledged
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Business *Business `gorm:"foreignKey:BusinessID"`
}
