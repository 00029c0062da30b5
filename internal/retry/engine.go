// Package retry owns the per-call escalation state machine: it schedules the
// timed notification attempts that follow a dispatch's first send, stops on
// acknowledgment, and gives up at the cutoff.
package retry

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/afterhours/internal/acks"
	"github.com/zulandar/afterhours/internal/alert"
	"github.com/zulandar/afterhours/internal/models"
	"github.com/zulandar/afterhours/internal/notify"
	"github.com/zulandar/afterhours/internal/packet"
	"github.com/zulandar/afterhours/internal/roster"
	"github.com/zulandar/afterhours/internal/urgency"
)

// Records is the slice of the record store the engine needs.
type Records interface {
	UpdateCallStatus(id, status, ackedBy string) error
	CreateEvent(evt *models.DispatchEvent) error
	StaleDispatching(olderThan time.Time) ([]models.Call, error)
	FindBusinessByID(id string) (*models.Business, error)
}

// AttemptSender delivers one notification attempt.
type AttemptSender interface {
	Send(ctx context.Context, att notify.Attempt) (notify.Result, error)
}

// ContactSource re-resolves the on-call roster during recovery.
type ContactSource interface {
	Select(businessID, trade string, now time.Time) (roster.Selection, error)
}

// StartOpts describes one sequence to run. Contacts are ordered primary
// first, then backups.
type StartOpts struct {
	CallID   string
	Urgency  string
	Info     packet.CallInfo
	Contacts []models.RosterEntry
}

// Opts configures an Engine.
type Opts struct {
	Records   Records
	Sender    AttemptSender
	Roster    ContactSource
	Alerts    alert.Notifier
	Clock     Clock
	Logger    *log.Logger
	Normal    Timing
	High      Timing
	BaseURL   string
	Minter    *acks.TokenMinter
	Staleness time.Duration
}

type sequence struct {
	callID  string
	opts    StartOpts
	timing  Timing
	started time.Time
	cancel  context.CancelFunc

	mu      sync.Mutex
	attempt int
	acked   bool
}

func (s *sequence) acknowledged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked
}

// Engine tracks every in-flight escalation sequence. One goroutine runs per
// call; the active map is the only shared state.
type Engine struct {
	records   Records
	sender    AttemptSender
	roster    ContactSource
	alerts    alert.Notifier
	clock     Clock
	logger    *log.Logger
	normal    Timing
	high      Timing
	baseURL   string
	minter    *acks.TokenMinter
	staleness time.Duration

	mu     sync.Mutex
	active map[string]*sequence

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func NewEngine(opts Opts) *Engine {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Alerts == nil {
		opts.Alerts = &alert.LogNotifier{Logger: opts.Logger}
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		records:   opts.Records,
		sender:    opts.Sender,
		roster:    opts.Roster,
		alerts:    opts.Alerts,
		clock:     opts.Clock,
		logger:    opts.Logger,
		normal:    opts.Normal,
		high:      opts.High,
		baseURL:   opts.BaseURL,
		minter:    opts.Minter,
		staleness: opts.Staleness,
		active:    make(map[string]*sequence),
		rootCtx:   ctx,
		stop:      cancel,
	}
}

func (e *Engine) timingFor(level string) Timing {
	if level == urgency.LevelHigh {
		return e.high
	}
	return e.normal
}

// Start registers a sequence and begins ticking. Starting a call that is
// already active is a no-op; it reports whether a new sequence was created.
func (e *Engine) Start(opts StartOpts) bool {
	if len(opts.Contacts) == 0 {
		e.logger.Printf("retry: refusing to start sequence for call %s with no contacts", opts.CallID)
		return false
	}

	e.mu.Lock()
	if _, exists := e.active[opts.CallID]; exists {
		e.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(e.rootCtx)
	seq := &sequence{
		callID:  opts.CallID,
		opts:    opts,
		timing:  e.timingFor(opts.Urgency),
		started: e.clock.Now(),
		cancel:  cancel,
		attempt: 1,
	}
	e.active[opts.CallID] = seq
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx, seq)
	}()
	return true
}

// MarkAcknowledged stops the sequence for a call. Unknown ids and repeat
// calls are harmless; it reports whether an active sequence was found.
func (e *Engine) MarkAcknowledged(callID, contactID string) bool {
	e.mu.Lock()
	seq, ok := e.active[callID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	seq.mu.Lock()
	seq.acked = true
	seq.mu.Unlock()
	seq.cancel()
	e.logger.Printf("retry: sequence for call %s cancelled by acknowledgment from %s", callID, contactID)
	return true
}

// IsActive reports whether a sequence is currently tracked for the call.
func (e *Engine) IsActive(callID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[callID]
	return ok
}

// ActiveCount returns the number of in-flight sequences.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Stop cancels every sequence and waits for their goroutines to exit.
func (e *Engine) Stop() {
	e.stop()
	e.wg.Wait()
}

func (e *Engine) remove(callID string) {
	e.mu.Lock()
	delete(e.active, callID)
	e.mu.Unlock()
}

// run drives one sequence. Acknowledgment is checked at the top of every
// tick; a send already in flight when the ack arrives completes normally.
func (e *Engine) run(ctx context.Context, seq *sequence) {
	defer e.remove(seq.callID)

	for {
		next := seq.attempt + 1
		if next > seq.timing.MaxAttempts {
			e.cutoff(seq)
			return
		}

		due := seq.started.Add(seq.timing.Offsets[next-2])
		if wait := due.Sub(e.clock.Now()); wait > 0 {
			if !e.clock.Sleep(ctx, wait) {
				// Cancelled: acknowledgment or engine shutdown.
				return
			}
		}

		if seq.acknowledged() {
			return
		}
		if e.clock.Now().Sub(seq.started) >= seq.timing.Cutoff {
			e.cutoff(seq)
			return
		}

		e.perform(ctx, seq, next)
		seq.mu.Lock()
		seq.attempt = next
		seq.mu.Unlock()
	}
}

// perform executes one scheduled attempt. Send failures are recorded by the
// sender and never stop the sequence.
func (e *Engine) perform(ctx context.Context, seq *sequence, attempt int) {
	st := planStep(attempt)
	contact := contactFor(seq.opts.Contacts, st.contactIndex)

	att := notify.Attempt{
		CallID:    seq.callID,
		ContactID: contact.ID,
		Channel:   st.channel,
		To:        contact.Phone,
		Number:    attempt,
	}
	if st.channel == models.EventChannelVoice {
		att.PromptURL = e.ackCallURL(seq.callID, contact.ID)
	} else {
		info := seq.opts.Info
		info.AckLink = e.ackLink(seq.callID, contact.ID)
		att.Body = packet.BuildSMS(info)
	}

	if _, err := e.sender.Send(ctx, att); err != nil {
		e.logger.Printf("retry: attempt %d for call %s errored: %v", attempt, seq.callID, err)
	}
}

func (e *Engine) ackCallURL(callID, contactID string) string {
	q := url.Values{}
	q.Set("callId", callID)
	q.Set("contactId", contactID)
	return fmt.Sprintf("%s/webhooks/telephony/ack-call?%s", e.baseURL, q.Encode())
}

func (e *Engine) ackLink(callID, contactID string) string {
	if e.minter == nil {
		return ""
	}
	token, err := e.minter.Mint(callID, contactID, e.clock.Now())
	if err != nil {
		e.logger.Printf("retry: mint ack link for call %s: %v", callID, err)
		return ""
	}
	return fmt.Sprintf("%s/api/ack/%s/%s", e.baseURL, callID, token)
}

// cutoff abandons the sequence: terminal event, no-ack status, operator
// alert.
func (e *Engine) cutoff(seq *sequence) {
	e.logger.Printf("retry: cutoff reached for call %s after attempt %d", seq.callID, seq.attempt)

	if err := e.records.UpdateCallStatus(seq.callID, models.CallStatusNoAck, ""); err != nil {
		e.logger.Printf("retry: mark call %s no-ack: %v", seq.callID, err)
	}

	evt := &models.DispatchEvent{
		ID:             uuid.NewString(),
		CallID:         seq.callID,
		Channel:        models.EventChannelCutoff,
		AttemptNumber:  seq.attempt,
		Result:         models.EventResultCutoff,
		DeliveryStatus: "CUTOFF",
		Notes:          "no acknowledgment received within cutoff time",
		SentAt:         e.clock.Now(),
	}
	if err := e.records.CreateEvent(evt); err != nil {
		e.logger.Printf("retry: cutoff event write for call %s: %v", seq.callID, err)
	}

	err := e.alerts.Notify(e.rootCtx, alert.Alert{
		Severity: alert.SeverityError,
		Title:    "Dispatch unacknowledged",
		Body:     fmt.Sprintf("No one accepted the call after %d attempts.", seq.attempt),
		CallID:   seq.callID,
		Business: seq.opts.Info.BusinessName,
	})
	if err != nil {
		e.logger.Printf("retry: cutoff alert for call %s: %v", seq.callID, err)
	}
}
