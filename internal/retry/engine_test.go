package retry

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/afterhours/internal/alert"
	"github.com/zulandar/afterhours/internal/models"
	"github.com/zulandar/afterhours/internal/notify"
	"github.com/zulandar/afterhours/internal/packet"
	"github.com/zulandar/afterhours/internal/roster"
)

// fakeClock is a manually advanced clock. Sleep re-checks its deadline on
// every Advance, so tests drive the state machine without real waiting.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	wake chan struct{}
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:  time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
		wake: make(chan struct{}),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	ch := c.wake
	c.wake = make(chan struct{})
	c.mu.Unlock()
	close(ch)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) bool {
	deadline := c.Now().Add(d)
	for {
		c.mu.Lock()
		now, ch := c.now, c.wake
		c.mu.Unlock()
		if !now.Before(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ch:
		}
	}
}

type fakeSender struct {
	mu       sync.Mutex
	attempts []notify.Attempt
}

func (f *fakeSender) Send(ctx context.Context, att notify.Attempt) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, att)
	return notify.Result{Success: true, ProviderSID: "SM-test"}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *fakeSender) all() []notify.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Attempt, len(f.attempts))
	copy(out, f.attempts)
	return out
}

type engineRecords struct {
	mu         sync.Mutex
	statuses   map[string]string
	events     []*models.DispatchEvent
	stale      []models.Call
	businesses map[string]*models.Business
}

func newEngineRecords() *engineRecords {
	return &engineRecords{
		statuses:   make(map[string]string),
		businesses: make(map[string]*models.Business),
	}
}

func (r *engineRecords) UpdateCallStatus(id, status, ackedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	return nil
}

func (r *engineRecords) CreateEvent(evt *models.DispatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *engineRecords) StaleDispatching(olderThan time.Time) ([]models.Call, error) {
	return r.stale, nil
}

func (r *engineRecords) FindBusinessByID(id string) (*models.Business, error) {
	return r.businesses[id], nil
}

func (r *engineRecords) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

func (r *engineRecords) eventResults() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Result
	}
	return out
}

type fakeContacts struct {
	sel roster.Selection
	err error
}

func (f *fakeContacts) Select(businessID, trade string, now time.Time) (roster.Selection, error) {
	return f.sel, f.err
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

var testTiming = Timing{
	Offsets:     []time.Duration{2 * time.Minute, 5 * time.Minute, 8 * time.Minute, 11 * time.Minute, 14 * time.Minute},
	Cutoff:      20 * time.Minute,
	MaxAttempts: 6,
}

var testHighTiming = Timing{
	Offsets:     []time.Duration{1 * time.Minute, 3 * time.Minute, 5 * time.Minute, 7 * time.Minute, 9 * time.Minute},
	Cutoff:      12 * time.Minute,
	MaxAttempts: 6,
}

func testContacts() []models.RosterEntry {
	return []models.RosterEntry{
		{ID: "primary", Phone: "+15550010001"},
		{ID: "backup1", Phone: "+15550010002"},
		{ID: "backup2", Phone: "+15550010003"},
	}
}

func newTestEngine(t *testing.T, clock Clock, records Records, sender AttemptSender, contacts ContactSource, alerts alert.Notifier) *Engine {
	t.Helper()
	e := NewEngine(Opts{
		Records:   records,
		Sender:    sender,
		Roster:    contacts,
		Alerts:    alerts,
		Clock:     clock,
		Logger:    log.New(io.Discard, "", 0),
		Normal:    testTiming,
		High:      testHighTiming,
		BaseURL:   "https://dispatch.example.com",
		Staleness: 5 * time.Minute,
	})
	t.Cleanup(e.Stop)
	return e
}

func startOpts(callID string) StartOpts {
	return StartOpts{
		CallID:   callID,
		Urgency:  "MEDIUM",
		Info:     packet.CallInfo{IssueSummary: "no hot water", Urgency: "MEDIUM", BusinessName: "Apex"},
		Contacts: testContacts(),
	}
}

func TestSequence_FollowsEscalationPlan(t *testing.T) {
	clock := newFakeClock()
	records := newEngineRecords()
	sender := &fakeSender{}
	e := newTestEngine(t, clock, records, sender, nil, alert.NewMockNotifier())

	if !e.Start(startOpts("call-1")) {
		t.Fatal("Start returned false")
	}

	steps := []struct {
		advance time.Duration
		channel string
		contact string
	}{
		{2 * time.Minute, models.EventChannelVoice, "primary"},
		{3 * time.Minute, models.EventChannelText, "backup1"},
		{3 * time.Minute, models.EventChannelVoice, "backup1"},
		{3 * time.Minute, models.EventChannelText, "backup2"},
		{3 * time.Minute, models.EventChannelVoice, "backup2"},
	}
	for i, st := range steps {
		clock.Advance(st.advance)
		want := i + 1
		waitFor(t, "scheduled attempt", func() bool { return sender.count() >= want })

		att := sender.all()[i]
		if att.Channel != st.channel || att.ContactID != st.contact {
			t.Errorf("attempt %d = %s to %s, want %s to %s", i+2, att.Channel, att.ContactID, st.channel, st.contact)
		}
		if att.Number != i+2 {
			t.Errorf("attempt number = %d, want %d", att.Number, i+2)
		}
	}

	// Max attempts reached: the sequence gives up without another timer.
	waitFor(t, "cutoff", func() bool { return records.status("call-1") == models.CallStatusNoAck })
	waitFor(t, "sequence removal", func() bool { return !e.IsActive("call-1") })

	results := records.eventResults()
	if len(results) != 1 || results[0] != models.EventResultCutoff {
		t.Errorf("events = %v, want one CUTOFF_REACHED", results)
	}
}

func TestSequence_VoiceAttemptsCarryPromptURL(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{}
	e := newTestEngine(t, clock, newEngineRecords(), sender, nil, alert.NewMockNotifier())
	e.Start(startOpts("call-1"))

	clock.Advance(2 * time.Minute)
	waitFor(t, "voice attempt", func() bool { return sender.count() >= 1 })

	att := sender.all()[0]
	if att.PromptURL == "" {
		t.Fatal("voice attempt missing prompt URL")
	}
	for _, want := range []string{"https://dispatch.example.com/webhooks/telephony/ack-call", "callId=call-1", "contactId=primary"} {
		if !strings.Contains(att.PromptURL, want) {
			t.Errorf("prompt URL %q missing %q", att.PromptURL, want)
		}
	}
}

func TestStart_IdempotentPerCall(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, newEngineRecords(), &fakeSender{}, nil, alert.NewMockNotifier())

	if !e.Start(startOpts("call-1")) {
		t.Fatal("first Start returned false")
	}
	if e.Start(startOpts("call-1")) {
		t.Error("second Start for the same call must be a no-op")
	}
	if e.ActiveCount() != 1 {
		t.Errorf("active = %d, want 1", e.ActiveCount())
	}
}

func TestStart_NoContacts(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), newEngineRecords(), &fakeSender{}, nil, alert.NewMockNotifier())
	if e.Start(StartOpts{CallID: "call-1"}) {
		t.Error("Start with no contacts should refuse")
	}
}

func TestMarkAcknowledged_StopsEscalation(t *testing.T) {
	clock := newFakeClock()
	records := newEngineRecords()
	sender := &fakeSender{}
	e := newTestEngine(t, clock, records, sender, nil, alert.NewMockNotifier())
	e.Start(startOpts("call-1"))

	clock.Advance(2 * time.Minute)
	waitFor(t, "attempt 2", func() bool { return sender.count() >= 1 })

	if !e.MarkAcknowledged("call-1", "primary") {
		t.Fatal("MarkAcknowledged returned false for an active call")
	}
	waitFor(t, "sequence removal", func() bool { return !e.IsActive("call-1") })

	// Later ticks never fire.
	clock.Advance(30 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if sender.count() != 1 {
		t.Errorf("sends after ack = %d, want 1 total", sender.count())
	}
	if records.status("call-1") == models.CallStatusNoAck {
		t.Error("acknowledged call must not reach cutoff")
	}
}

func TestMarkAcknowledged_UnknownAndDuplicate(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), newEngineRecords(), &fakeSender{}, nil, alert.NewMockNotifier())

	if e.MarkAcknowledged("missing", "r-1") {
		t.Error("unknown call id should report not found")
	}

	e.Start(startOpts("call-1"))
	e.MarkAcknowledged("call-1", "r-1")
	// A duplicate is harmless whether or not the goroutine has exited yet.
	e.MarkAcknowledged("call-1", "r-1")
	waitFor(t, "sequence removal", func() bool { return e.ActiveCount() == 0 })
}

func TestCutoff_WallClockBeatsAttemptCount(t *testing.T) {
	clock := newFakeClock()
	records := newEngineRecords()
	sender := &fakeSender{}
	mock := alert.NewMockNotifier()
	e := newTestEngine(t, clock, records, sender, nil, mock)

	opts := startOpts("call-1")
	opts.Urgency = "HIGH" // 12 minute cutoff
	e.Start(opts)

	// Attempts at 1m and 3m fit inside the cutoff.
	clock.Advance(1 * time.Minute)
	waitFor(t, "attempt 2", func() bool { return sender.count() >= 1 })
	clock.Advance(2 * time.Minute)
	waitFor(t, "attempt 3", func() bool { return sender.count() >= 2 })

	// Jump past the cutoff; the next tick abandons instead of sending.
	clock.Advance(10 * time.Minute)
	waitFor(t, "cutoff", func() bool { return records.status("call-1") == models.CallStatusNoAck })

	if sender.count() != 2 {
		t.Errorf("sends = %d, want 2", sender.count())
	}
	waitFor(t, "cutoff alert", func() bool { return len(mock.Alerts()) == 1 })
	if a := mock.Alerts()[0]; a.Severity != alert.SeverityError || a.CallID != "call-1" {
		t.Errorf("alert = %+v", a)
	}
}

func TestRecover(t *testing.T) {
	clock := newFakeClock()
	records := newEngineRecords()
	bizID := "biz-1"
	records.businesses[bizID] = &models.Business{ID: bizID, Name: "Apex", Trade: "plumbing"}
	records.stale = []models.Call{
		{ID: "lost-1", Status: models.CallStatusDispatching, BusinessID: &bizID, EmergencyLevel: "HIGH", IssueSummary: "gas leak"},
		{ID: "lost-2", Status: models.CallStatusDispatching}, // no business, unrecoverable
	}
	contacts := &fakeContacts{sel: roster.Selection{
		Primary: &models.RosterEntry{ID: "r-1", Phone: "+15550010001"},
	}}
	sender := &fakeSender{}
	e := newTestEngine(t, clock, records, sender, contacts, alert.NewMockNotifier())

	n, err := e.Recover()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("recovered = %d, want 1", n)
	}
	if !e.IsActive("lost-1") {
		t.Error("lost-1 should be active after recovery")
	}
	if e.IsActive("lost-2") {
		t.Error("lost-2 has no business and must not be recovered")
	}

	// Stored HIGH urgency selects the compressed timing table.
	clock.Advance(1 * time.Minute)
	waitFor(t, "first recovered attempt", func() bool { return sender.count() >= 1 })
}

func TestRecover_SkipsActiveSequences(t *testing.T) {
	clock := newFakeClock()
	records := newEngineRecords()
	bizID := "biz-1"
	records.businesses[bizID] = &models.Business{ID: bizID, Name: "Apex"}
	records.stale = []models.Call{
		{ID: "call-1", Status: models.CallStatusDispatching, BusinessID: &bizID},
	}
	contacts := &fakeContacts{sel: roster.Selection{
		Primary: &models.RosterEntry{ID: "r-1", Phone: "+15550010001"},
	}}
	e := newTestEngine(t, clock, records, &fakeSender{}, contacts, alert.NewMockNotifier())

	e.Start(startOpts("call-1"))
	n, err := e.Recover()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("recovered = %d, want 0 (already active)", n)
	}
	if e.ActiveCount() != 1 {
		t.Errorf("active = %d, want 1", e.ActiveCount())
	}
}

func TestRecover_NoRosterAvailable(t *testing.T) {
	records := newEngineRecords()
	bizID := "biz-1"
	records.businesses[bizID] = &models.Business{ID: bizID, Name: "Apex"}
	records.stale = []models.Call{
		{ID: "call-1", Status: models.CallStatusDispatching, BusinessID: &bizID},
	}
	e := newTestEngine(t, newFakeClock(), records, &fakeSender{}, &fakeContacts{}, alert.NewMockNotifier())

	n, err := e.Recover()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 || e.ActiveCount() != 0 {
		t.Errorf("recovered = %d active = %d, want 0/0", n, e.ActiveCount())
	}
}
