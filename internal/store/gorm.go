package store

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/afterhours/internal/models"
	"gorm.io/gorm"
)

// GormStore implements Store on a GORM database (sqlite or mysql).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a connected GORM database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FindBusinessByNumber matches a registered dispatch number exactly.
// Returns (nil, nil) when no business owns the number.
func (s *GormStore) FindBusinessByNumber(number string) (*models.Business, error) {
	if number == "" {
		return nil, nil
	}
	var b models.Business
	err := s.db.Where("dispatch_number = ?", number).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: business by number: %w", err)
	}
	return &b, nil
}

// FindBusinessByID looks up a business by primary key. (nil, nil) if absent.
func (s *GormStore) FindBusinessByID(id string) (*models.Business, error) {
	var b models.Business
	err := s.db.Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: business by id: %w", err)
	}
	return &b, nil
}

// ListBusinesses returns up to limit businesses. The resolver only ever
// needs two rows to distinguish sole-tenant from multi-tenant.
func (s *GormStore) ListBusinesses(limit int) ([]models.Business, error) {
	var bs []models.Business
	q := s.db.Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&bs).Error; err != nil {
		return nil, fmt.Errorf("store: list businesses: %w", err)
	}
	return bs, nil
}

// CreateCall inserts a call record. The insert is retried once on failure:
// a call record existing in at least minimal form outranks a clean error.
func (s *GormStore) CreateCall(call *models.Call) error {
	if err := s.db.Create(call).Error; err != nil {
		log.Printf("store: create call %s failed, retrying once: %v", call.ID, err)
		if err2 := s.db.Create(call).Error; err2 != nil {
			return fmt.Errorf("store: create call %s: %w", call.ID, err2)
		}
	}
	return nil
}

// GetCall fetches a call by ID. (nil, nil) if absent.
func (s *GormStore) GetCall(id string) (*models.Call, error) {
	var c models.Call
	err := s.db.Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get call: %w", err)
	}
	return &c, nil
}

// UpdateCallStatus sets a call's lifecycle status (and acknowledging
// contact, when given).
func (s *GormStore) UpdateCallStatus(id, status, ackedBy string) error {
	updates := map[string]interface{}{"status": status}
	if ackedBy != "" {
		updates["acked_by"] = ackedBy
	}
	res := s.db.Model(&models.Call{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: update call %s status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: update call %s status: no such call", id)
	}
	return nil
}

// CountCallsByStatus counts calls in the given status.
func (s *GormStore) CountCallsByStatus(status string) (int64, error) {
	var n int64
	if err := s.db.Model(&models.Call{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count calls: %w", err)
	}
	return n, nil
}

// StaleDispatching finds DISPATCHING calls whose latest dispatch event is
// older than the threshold. Eventless calls fall back to their created time.
func (s *GormStore) StaleDispatching(olderThan time.Time) ([]models.Call, error) {
	var calls []models.Call
	err := s.db.
		Where("status = ?", models.CallStatusDispatching).
		Where(`COALESCE(
			(SELECT MAX(sent_at) FROM dispatch_events WHERE dispatch_events.call_id = calls.id),
			calls.created_at) < ?`, olderThan).
		Find(&calls).Error
	if err != nil {
		return nil, fmt.Errorf("store: stale dispatching: %w", err)
	}
	return calls, nil
}

// PendingCallForContact resolves an inbound SMS reply to the call it most
// plausibly acknowledges: the newest DISPATCHING call belonging to a
// business whose roster carries the sender's phone.
func (s *GormStore) PendingCallForContact(phone string) (*models.Call, *models.RosterEntry, error) {
	if phone == "" {
		return nil, nil, nil
	}
	var entries []models.RosterEntry
	if err := s.db.Where("phone = ? AND active = ?", phone, true).Find(&entries).Error; err != nil {
		return nil, nil, fmt.Errorf("store: roster by phone: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, len(entries))
	byBusiness := make(map[string]*models.RosterEntry, len(entries))
	for i := range entries {
		ids[i] = entries[i].BusinessID
		byBusiness[entries[i].BusinessID] = &entries[i]
	}

	var c models.Call
	err := s.db.
		Where("status = ? AND business_id IN ?", models.CallStatusDispatching, ids).
		Order("created_at DESC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: pending call for contact: %w", err)
	}

	entry := byBusiness[derefStr(c.BusinessID)]
	return &c, entry, nil
}

// ActiveRoster returns active roster entries for a business whose schedule
// window covers now, filtered by trade when given, ordered by priority.
// Windows are minutes since local midnight; WindowStart > WindowEnd wraps.
func (s *GormStore) ActiveRoster(businessID, trade string, now time.Time) ([]models.RosterEntry, error) {
	minute := now.Hour()*60 + now.Minute()

	q := s.db.Where("business_id = ? AND active = ?", businessID, true)
	if trade != "" {
		q = q.Where("trade = ? OR trade = ''", trade)
	}
	q = q.Where(`(window_start <= window_end AND window_start <= ? AND ? < window_end)
		OR (window_start > window_end AND (? >= window_start OR ? < window_end))`,
		minute, minute, minute, minute)

	var entries []models.RosterEntry
	if err := q.Order("priority, id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: active roster: %w", err)
	}
	return entries, nil
}

// CreateEvent appends a dispatch event, retrying once. Audit gaps are worse
// than duplicate work here.
func (s *GormStore) CreateEvent(evt *models.DispatchEvent) error {
	if err := s.db.Create(evt).Error; err != nil {
		log.Printf("store: create event for call %s failed, retrying once: %v", evt.CallID, err)
		if err2 := s.db.Create(evt).Error; err2 != nil {
			return fmt.Errorf("store: create event: %w", err2)
		}
	}
	return nil
}

// EventsForCall returns a call's dispatch events, oldest first.
func (s *GormStore) EventsForCall(callID string) ([]models.DispatchEvent, error) {
	var evts []models.DispatchEvent
	if err := s.db.Where("call_id = ?", callID).Order("sent_at, id").Find(&evts).Error; err != nil {
		return nil, fmt.Errorf("store: events for call: %w", err)
	}
	return evts, nil
}

// UpdateEventDelivery records a provider delivery-status callback against the
// event that carries the provider message id. Unknown SIDs are a no-op: the
// callback may outlive the event's retention or belong to a foreign message.
func (s *GormStore) UpdateEventDelivery(providerSID, status, errCode string) error {
	if providerSID == "" {
		return nil
	}
	updates := map[string]interface{}{"delivery_status": status}
	if errCode != "" {
		updates["delivery_error"] = errCode
	}
	err := s.db.Model(&models.DispatchEvent{}).
		Where("provider_s_id = ?", providerSID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("store: update event delivery: %w", err)
	}
	return nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
