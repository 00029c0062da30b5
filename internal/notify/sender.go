package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/afterhours/internal/models"
)

// EventLog is the slice of the record store the sender needs.
type EventLog interface {
	CreateEvent(evt *models.DispatchEvent) error
}

// Attempt describes one delivery attempt to a single contact.
type Attempt struct {
	CallID    string
	ContactID string
	Channel   string // models.EventChannelText or models.EventChannelVoice
	To        string
	Body      string // SMS body, ignored for voice
	PromptURL string // TwiML URL, ignored for text
	Number    int    // attempt number within the escalation sequence
}

// Sender delivers attempts through an adapter and writes one dispatch event
// per attempt. A failed event write is logged and never changes the
// delivery outcome.
type Sender struct {
	adapter Adapter
	events  EventLog
	logger  *log.Logger
}

func NewSender(adapter Adapter, events EventLog, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Default()
	}
	return &Sender{adapter: adapter, events: events, logger: logger}
}

// Send performs the attempt. Provider failures are returned inside the
// Result; the error return fires only when the adapter itself is broken, and
// even then an event row records the attempt.
func (s *Sender) Send(ctx context.Context, att Attempt) (Result, error) {
	var (
		res Result
		err error
	)
	switch att.Channel {
	case models.EventChannelVoice:
		res, err = s.adapter.SendVoice(ctx, att.To, att.PromptURL)
	default:
		res, err = s.adapter.SendText(ctx, att.To, att.Body)
	}
	if err != nil {
		res = Result{Error: err.Error()}
	}

	s.logEvent(att, res)

	if res.Success {
		s.logger.Printf("notify: attempt %d %s to %s sent (sid=%s)", att.Number, att.Channel, att.To, res.ProviderSID)
	} else if res.Blocked() {
		s.logger.Printf("notify: attempt %d %s to %s blocked by carrier (30034)", att.Number, att.Channel, att.To)
	} else {
		s.logger.Printf("notify: attempt %d %s to %s failed: %s", att.Number, att.Channel, att.To, res.Error)
	}
	return res, err
}

func (s *Sender) logEvent(att Attempt, res Result) {
	evt := &models.DispatchEvent{
		ID:            uuid.NewString(),
		CallID:        att.CallID,
		ContactID:     att.ContactID,
		Channel:       att.Channel,
		AttemptNumber: att.Number,
		ProviderSID:   res.ProviderSID,
		SentAt:        time.Now(),
	}
	switch {
	case res.Success:
		evt.Result = models.EventResultSent
		evt.DeliveryStatus = res.Status
	case res.Blocked():
		evt.Result = models.EventResultBlocked
		evt.DeliveryStatus = "FAILED"
		evt.DeliveryError = "30034"
	default:
		evt.Result = models.EventResultFailed
		evt.DeliveryStatus = "FAILED"
		evt.Notes = res.Error
	}
	if err := s.events.CreateEvent(evt); err != nil {
		s.logger.Printf("notify: event log write failed for call %s: %v", att.CallID, err)
	}
}
