package models

import "time"

// RosterEntry is one on-call contact for a business. Priority is ascending:
// 1 is paged first. Backup entries are only reached by escalation.
type RosterEntry struct {
	ID         string `gorm:"primaryKey;size:32"`
	BusinessID string `gorm:"size:32;index;not null"`
	Name       string `gorm:"not null"`
	Phone      string `gorm:"size:24;not null"`
	Role       string `gorm:"size:32"`
	Trade      string `gorm:"size:32;index"`
	Priority   int    `gorm:"default:99;index"`
	Backup     bool   `gorm:"default:false"`
	Active     bool   `gorm:"default:true;index"`
	// Schedule window, minutes since midnight local time. A window that
	// wraps midnight has WindowStart > WindowEnd.
	WindowStart int `gorm:"default:0"`
	WindowEnd   int `gorm:"default:1440"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Business Business `gorm:"foreignKey:BusinessID"`
}
