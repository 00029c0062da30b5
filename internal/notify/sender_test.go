package notify

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/zulandar/afterhours/internal/models"
)

type fakeEventLog struct {
	mu     sync.Mutex
	events []*models.DispatchEvent
	err    error
}

func (f *fakeEventLog) CreateEvent(evt *models.DispatchEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func newTestSender(adapter Adapter, events EventLog) *Sender {
	return NewSender(adapter, events, log.New(io.Discard, "", 0))
}

func TestSend_TextSuccess(t *testing.T) {
	mock := NewMockAdapter()
	mock.QueueResult(Result{Success: true, ProviderSID: "SM1", Status: "QUEUED"})
	events := &fakeEventLog{}
	s := newTestSender(mock, events)

	res, err := s.Send(context.Background(), Attempt{
		CallID: "call-1", ContactID: "r-1", Channel: models.EventChannelText,
		To: "+15550011111", Body: "dispatch summary", Number: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}

	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Channel != "SMS" || sent[0].To != "+15550011111" {
		t.Fatalf("sent = %+v", sent)
	}
	if len(events.events) != 1 {
		t.Fatalf("events = %d, want exactly 1 per attempt", len(events.events))
	}
	evt := events.events[0]
	if evt.Result != models.EventResultSent || evt.ProviderSID != "SM1" || evt.AttemptNumber != 1 {
		t.Errorf("event = %+v", evt)
	}
}

func TestSend_VoiceRoutesToVoice(t *testing.T) {
	mock := NewMockAdapter()
	events := &fakeEventLog{}
	s := newTestSender(mock, events)

	_, err := s.Send(context.Background(), Attempt{
		CallID: "call-1", Channel: models.EventChannelVoice,
		To: "+15550011111", PromptURL: "https://example.com/twiml", Number: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Channel != "CALL" || sent[0].Body != "https://example.com/twiml" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestSend_CarrierBlocked(t *testing.T) {
	mock := NewMockAdapter()
	mock.QueueResult(Result{ErrCode: CodeCarrierBlocked, Error: "blocked"})
	events := &fakeEventLog{}
	s := newTestSender(mock, events)

	res, err := s.Send(context.Background(), Attempt{
		CallID: "call-1", Channel: models.EventChannelText, To: "+1", Number: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || !res.Blocked() {
		t.Fatalf("res = %+v, want blocked failure", res)
	}
	if len(events.events) != 1 {
		t.Fatalf("events = %d", len(events.events))
	}
	if events.events[0].Result != models.EventResultBlocked || events.events[0].DeliveryError != "30034" {
		t.Errorf("event = %+v", events.events[0])
	}
}

func TestSend_ProviderFailure(t *testing.T) {
	mock := NewMockAdapter()
	mock.QueueResult(Result{Error: "number unreachable"})
	events := &fakeEventLog{}
	s := newTestSender(mock, events)

	res, err := s.Send(context.Background(), Attempt{
		CallID: "call-1", Channel: models.EventChannelText, To: "+1", Number: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if events.events[0].Result != models.EventResultFailed || events.events[0].Notes != "number unreachable" {
		t.Errorf("event = %+v", events.events[0])
	}
}

func TestSend_EventLogFailureDoesNotChangeOutcome(t *testing.T) {
	mock := NewMockAdapter()
	mock.QueueResult(Result{Success: true, ProviderSID: "SM1", Status: "SENT"})
	events := &fakeEventLog{err: errors.New("db down")}
	s := newTestSender(mock, events)

	res, err := s.Send(context.Background(), Attempt{
		CallID: "call-1", Channel: models.EventChannelText, To: "+1", Number: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Error("event log failure must not alter the delivery outcome")
	}
}

func TestSend_AdapterError(t *testing.T) {
	mock := NewMockAdapter()
	mock.FailWith(errors.New("not configured"))
	events := &fakeEventLog{}
	s := newTestSender(mock, events)

	res, err := s.Send(context.Background(), Attempt{
		CallID: "call-1", Channel: models.EventChannelText, To: "+1", Number: 1,
	})
	if err == nil {
		t.Fatal("expected adapter error")
	}
	if res.Success {
		t.Error("result should be a failure")
	}
	// The attempt is still recorded.
	if len(events.events) != 1 || events.events[0].Result != models.EventResultFailed {
		t.Errorf("events = %+v", events.events)
	}
}
