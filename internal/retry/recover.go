package retry

import (
	"fmt"

	"github.com/zulandar/afterhours/internal/models"
	"github.com/zulandar/afterhours/internal/packet"
	"github.com/zulandar/afterhours/internal/urgency"
)

// Recover rebuilds sequences for calls left DISPATCHING with no recent
// activity, typically after a crash or restart. Each call is recovered
// independently; one failure never aborts the rest. The recovered sequence
// restarts its timing from now.
func (e *Engine) Recover() (int, error) {
	cutoff := e.clock.Now().Add(-e.staleness)
	stale, err := e.records.StaleDispatching(cutoff)
	if err != nil {
		return 0, fmt.Errorf("retry: query stale dispatches: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	e.logger.Printf("retry: found %d lost dispatch(es)", len(stale))

	recovered := 0
	for i := range stale {
		call := &stale[i]
		if e.IsActive(call.ID) {
			e.logger.Printf("retry: call %s already active, skipping recovery", call.ID)
			continue
		}
		if err := e.recoverOne(call); err != nil {
			e.logger.Printf("retry: recover call %s: %v", call.ID, err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

func (e *Engine) recoverOne(call *models.Call) error {
	if call.BusinessID == nil || *call.BusinessID == "" {
		return fmt.Errorf("no business on record")
	}
	biz, err := e.records.FindBusinessByID(*call.BusinessID)
	if err != nil {
		return fmt.Errorf("load business: %w", err)
	}
	if biz == nil {
		return fmt.Errorf("business %s not found", *call.BusinessID)
	}

	sel, err := e.roster.Select(biz.ID, biz.Trade, e.clock.Now())
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	if !sel.Assigned() {
		return fmt.Errorf("no on-call contact available")
	}

	// Urgency comes from the stored field, not a fresh classification pass.
	level := urgency.Normalize(call.EmergencyLevel)

	started := e.Start(StartOpts{
		CallID:  call.ID,
		Urgency: level,
		Info: packet.CallInfo{
			CallerPhone:   call.CallerPhone,
			IssueSummary:  call.IssueSummary,
			Urgency:       level,
			EmergencyNote: call.EmergencyNote,
			BusinessName:  biz.Name,
		},
		Contacts: sel.Contacts(),
	})
	if !started {
		return fmt.Errorf("sequence already active")
	}
	e.logger.Printf("retry: sequence restarted for call %s", call.ID)
	return nil
}
