package acks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/afterhours/internal/models"
	"github.com/zulandar/afterhours/internal/notify"
)

// Channels an acknowledgment can arrive on.
const (
	ChannelSMS  = "SMS"
	ChannelCall = "CALL"
	ChannelLink = "LINK"
)

// Records is the slice of the record store the handler needs.
type Records interface {
	GetCall(id string) (*models.Call, error)
	UpdateCallStatus(id, status, ackedBy string) error
	CreateEvent(evt *models.DispatchEvent) error
	FindBusinessByID(id string) (*models.Business, error)
}

// Canceller stops pending escalation for a call once someone accepts it.
type Canceller interface {
	MarkAcknowledged(callID, contactID string) bool
}

// Handler records acknowledgments: it confirms the call, logs an event,
// cancels pending escalation, and optionally texts a confirmation back to
// the caller.
type Handler struct {
	records Records
	engine  Canceller
	adapter notify.Adapter
	logger  *log.Logger
}

func NewHandler(records Records, engine Canceller, adapter notify.Adapter, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{records: records, engine: engine, adapter: adapter, logger: logger}
}

// Acknowledge marks the call as taken by the given contact. It is safe to
// call more than once; a call already confirmed stays confirmed by its
// first acknowledger.
func (h *Handler) Acknowledge(ctx context.Context, callID, contactID, channel string) error {
	call, err := h.records.GetCall(callID)
	if err != nil {
		return fmt.Errorf("acks: load call %s: %w", callID, err)
	}
	if call == nil {
		return fmt.Errorf("acks: call %s not found", callID)
	}
	if call.Status == models.CallStatusConfirmed {
		return nil
	}

	if err := h.records.UpdateCallStatus(callID, models.CallStatusConfirmed, contactID); err != nil {
		return fmt.Errorf("acks: confirm call %s: %w", callID, err)
	}

	evt := &models.DispatchEvent{
		ID:           uuid.NewString(),
		CallID:       callID,
		ContactID:    contactID,
		Channel:      channel,
		Result:       models.EventResultAcknowledged,
		Acknowledged: true,
		SentAt:       time.Now(),
	}
	if err := h.records.CreateEvent(evt); err != nil {
		h.logger.Printf("acks: event log write failed for call %s: %v", callID, err)
	}

	if h.engine != nil {
		h.engine.MarkAcknowledged(callID, contactID)
	}
	h.logger.Printf("acks: call %s acknowledged by %s via %s", callID, contactID, channel)

	h.confirmCaller(ctx, call)
	return nil
}

// AcknowledgeSMS applies the reply-keyword check before acknowledging.
func (h *Handler) AcknowledgeSMS(ctx context.Context, callID, contactID, body string) (bool, error) {
	if !IsAcknowledgment(body) {
		return false, nil
	}
	if err := h.Acknowledge(ctx, callID, contactID, ChannelSMS); err != nil {
		return false, err
	}
	return true, nil
}

// confirmCaller texts the original caller when their business opted in.
// Failures only log; the acknowledgment already stands.
func (h *Handler) confirmCaller(ctx context.Context, call *models.Call) {
	if h.adapter == nil || call.BusinessID == nil || call.CallerPhone == "" {
		return
	}
	biz, err := h.records.FindBusinessByID(*call.BusinessID)
	if err != nil || biz == nil || !biz.CallerConfirm {
		return
	}
	msg := fmt.Sprintf("%s: a technician has accepted your call and will contact you shortly.", biz.Name)
	if res, err := h.adapter.SendText(ctx, call.CallerPhone, msg); err != nil || !res.Success {
		h.logger.Printf("acks: caller confirmation for call %s failed", call.ID)
	}
}
