package models

import "time"

// Dispatch event channels and results.
const (
	EventChannelText   = "SMS"
	EventChannelVoice  = "CALL"
	EventChannelCutoff = "CUTOFF"

	EventResultSent         = "SENT"
	EventResultFailed       = "FAILED"
	EventResultBlocked      = "BLOCKED_CARRIER"
	EventResultAcknowledged = "ACKNOWLEDGED"
	EventResultCutoff       = "CUTOFF_REACHED"
)

// DispatchEvent is the append-only audit record for one notification
// attempt (or ack, or cutoff). Never updated except for delivery status
// arriving later from the provider callback.
type DispatchEvent struct {
	ID             string `gorm:"primaryKey;size:32"`
	CallID         string `gorm:"size:64;index;not null"`
	ContactID      string `gorm:"size:32"`
	Channel        string `gorm:"size:8;not null"`
	AttemptNumber  int
	Result         string `gorm:"size:24"`
	DeliveryStatus string `gorm:"size:24"`
	DeliveryError  string `gorm:"size:16"` // provider error code, if any
	ProviderSID    string `gorm:"size:64;index"`
	Acknowledged   bool   `gorm:"default:false"`
	Notes          string `gorm:"size:512"`
	SentAt         time.Time
	CreatedAt      time.Time
}
