// Package store is the narrow interface to the persistent record store.
// Everything above it treats the store as an external service: structured
// results, no gorm types in signatures beyond the shared models.
package store

import (
	"time"

	"github.com/zulandar/afterhours/internal/models"
)

// Store is the record-store surface consumed by the dispatch pipeline.
type Store interface {
	// Businesses.
	FindBusinessByNumber(number string) (*models.Business, error)
	FindBusinessByID(id string) (*models.Business, error)
	ListBusinesses(limit int) ([]models.Business, error)

	// Calls.
	CreateCall(call *models.Call) error
	GetCall(id string) (*models.Call, error)
	UpdateCallStatus(id, status, ackedBy string) error
	CountCallsByStatus(status string) (int64, error)
	// StaleDispatching returns calls stuck in DISPATCHING whose most
	// recent dispatch event (or creation, if eventless) is older than
	// the threshold. Drives crash recovery.
	StaleDispatching(olderThan time.Time) ([]models.Call, error)
	// PendingCallForContact finds the most recent DISPATCHING call
	// reachable by the given contact phone, for SMS-reply acks.
	PendingCallForContact(phone string) (*models.Call, *models.RosterEntry, error)

	// Roster.
	ActiveRoster(businessID, trade string, now time.Time) ([]models.RosterEntry, error)

	// Dispatch events.
	CreateEvent(evt *models.DispatchEvent) error
	EventsForCall(callID string) ([]models.DispatchEvent, error)
	UpdateEventDelivery(providerSID, status, errCode string) error
}
