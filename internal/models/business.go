package models

import "time"

// Business is a tenant whose after-hours calls we dispatch.
type Business struct {
	ID                string `gorm:"primaryKey;size:32"`
	Name              string `gorm:"not null"`
	Trade             string `gorm:"size:32;index"` // plumbing, hvac, electrical, ...
	DispatchNumber    string `gorm:"size:24;uniqueIndex"`
	OwnerPhone        string `gorm:"size:24"`
	EmergencyKeywords string `gorm:"type:text"` // comma-separated, business-specific
	VoiceFallback     bool   `gorm:"default:false"`
	CallerConfirm     bool   `gorm:"default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
