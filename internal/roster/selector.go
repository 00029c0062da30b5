// Package roster selects who is on call for a business at a point in time.
package roster

import (
	"fmt"
	"time"

	"github.com/zulandar/afterhours/internal/models"
)

// Schedule is the slice of the record store the selector needs.
type Schedule interface {
	ActiveRoster(businessID, trade string, now time.Time) ([]models.RosterEntry, error)
}

// Selection names the on-call primary plus every backup in escalation order.
// Primary is nil when the roster has nobody available; callers treat that as
// an unassigned dispatch, not an error.
type Selection struct {
	Primary *models.RosterEntry
	Backups []models.RosterEntry
}

// Assigned reports whether anyone was available to take the call.
func (s Selection) Assigned() bool { return s.Primary != nil }

// Contacts returns primary followed by backups, the order escalation walks.
func (s Selection) Contacts() []models.RosterEntry {
	if s.Primary == nil {
		return nil
	}
	out := make([]models.RosterEntry, 0, 1+len(s.Backups))
	out = append(out, *s.Primary)
	out = append(out, s.Backups...)
	return out
}

// Selector picks on-call contacts from the active roster.
type Selector struct {
	sched Schedule
}

func NewSelector(sched Schedule) *Selector {
	return &Selector{sched: sched}
}

// Select returns the highest-priority active entry as primary and the rest
// as backups. An empty roster yields an empty Selection with a nil error.
func (s *Selector) Select(businessID, trade string, now time.Time) (Selection, error) {
	entries, err := s.sched.ActiveRoster(businessID, trade, now)
	if err != nil {
		return Selection{}, fmt.Errorf("roster: load active roster: %w", err)
	}
	if len(entries) == 0 {
		return Selection{}, nil
	}
	return Selection{
		Primary: &entries[0],
		Backups: entries[1:],
	}, nil
}
