// Package dispatcher is the top-level entry point for one inbound call: it
// normalizes the payload, resolves the business, classifies urgency, writes
// the call record, performs the first notification attempt, and hands the
// rest of the escalation to the retry engine. Its contract to the caller is
// that Process never fails: every failure mode collapses into a terminal
// call status plus an operator alert.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/afterhours/internal/acks"
	"github.com/zulandar/afterhours/internal/alert"
	"github.com/zulandar/afterhours/internal/business"
	"github.com/zulandar/afterhours/internal/models"
	"github.com/zulandar/afterhours/internal/notify"
	"github.com/zulandar/afterhours/internal/packet"
	"github.com/zulandar/afterhours/internal/retry"
	"github.com/zulandar/afterhours/internal/roster"
	"github.com/zulandar/afterhours/internal/urgency"
)

// Records is the slice of the record store the orchestrator needs.
type Records interface {
	CreateCall(call *models.Call) error
	UpdateCallStatus(id, status, ackedBy string) error
}

// Escalator schedules the timed attempts that follow the first send.
type Escalator interface {
	Start(opts retry.StartOpts) bool
}

// ContactSource selects the on-call roster for a business.
type ContactSource interface {
	Select(businessID, trade string, now time.Time) (roster.Selection, error)
}

// SecondaryPolicy holds the resolved triggers for the voice-call attempt
// made alongside the first text.
type SecondaryPolicy struct {
	OnOptIn        bool
	OnHighUrgency  bool
	OnPrimaryFail  bool
	OnCarrierBlock bool
}

// Result is what Process reports back to the webhook layer. Success is true
// for every handled outcome, including needs-review and unassigned; the
// orchestrator reserves failure for nothing.
type Result struct {
	Success         bool
	CallID          string
	Status          string
	Reason          string
	Urgency         string
	ContactName     string
	ContactPhone    string
	DispatchSuccess bool
}

// Opts wires an Orchestrator.
type Opts struct {
	Records  Records
	Resolver *business.Resolver
	Roster   ContactSource
	Sender   retry.AttemptSender
	Engine   Escalator
	Alerts   alert.Notifier
	Policy   SecondaryPolicy
	BaseURL  string
	Minter   *acks.TokenMinter
	Logger   *log.Logger
	Now      func() time.Time
}

type Orchestrator struct {
	records  Records
	resolver *business.Resolver
	roster   ContactSource
	sender   retry.AttemptSender
	engine   Escalator
	alerts   alert.Notifier
	policy   SecondaryPolicy
	baseURL  string
	minter   *acks.TokenMinter
	logger   *log.Logger
	now      func() time.Time
}

func New(opts Opts) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Alerts == nil {
		opts.Alerts = &alert.LogNotifier{Logger: opts.Logger}
	}
	return &Orchestrator{
		records:  opts.Records,
		resolver: opts.Resolver,
		roster:   opts.Roster,
		sender:   opts.Sender,
		engine:   opts.Engine,
		alerts:   opts.Alerts,
		policy:   opts.Policy,
		baseURL:  opts.BaseURL,
		minter:   opts.Minter,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Process dispatches one inbound call. It never returns an error and never
// panics across this boundary; an unexpected panic becomes a needs-review
// result.
func (o *Orchestrator) Process(ctx context.Context, raw json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("dispatcher: recovered from panic: %v", r)
			res = o.failSafe(ctx, raw, fmt.Sprintf("internal error: %v", r))
		}
	}()

	norm, err := Normalize(raw)
	if err != nil {
		return o.failSafe(ctx, nil, err.Error())
	}
	return o.dispatch(ctx, norm)
}

func (o *Orchestrator) dispatch(ctx context.Context, norm Normalized) Result {
	o.logger.Printf("dispatcher: processing call %s from %s", norm.SourceCallID, norm.CallerPhone)

	match, err := o.resolver.Resolve(business.Input{
		DialedNumber: norm.DialedNumber,
		IVRSelection: norm.IVRSelection,
		BusinessID:   norm.BusinessID,
	})
	if err != nil {
		// Resolution infrastructure failure routes to review, not to the caller.
		o.logger.Printf("dispatcher: business resolution errored: %v", err)
		match = business.Resolution{Method: business.MethodNone, NeedsReview: true}
	}

	var keywords []string
	if match.Business != nil && match.Business.EmergencyKeywords != "" {
		for _, kw := range strings.Split(match.Business.EmergencyKeywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}

	cls := urgency.Classify(urgency.Input{
		EmergencyLevel: norm.EmergencyLevel,
		Transcript:     norm.Transcript,
		IssueSummary:   norm.IssueSummary,
	}, keywords)
	o.logger.Printf("dispatcher: urgency %s (%s)", cls.Level, cls.Reason)

	call := o.buildCall(norm, match, cls)
	if err := o.records.CreateCall(call); err != nil {
		// The record store already retried once; dispatch proceeds anyway.
		o.logger.Printf("dispatcher: call record creation failed for %s: %v", call.ID, err)
	}

	if match.NeedsReview || match.Business == nil {
		o.setStatus(call.ID, models.CallStatusNeedsReview)
		o.alert(ctx, alert.SeverityWarning, "Call needs review", "No business could be matched to this call.", call.ID, "")
		return Result{
			Success: true, CallID: call.ID, Status: models.CallStatusNeedsReview,
			Reason: "business could not be determined", Urgency: cls.Level,
		}
	}
	biz := match.Business

	sel, err := o.roster.Select(biz.ID, biz.Trade, o.now())
	if err != nil {
		o.logger.Printf("dispatcher: roster selection errored: %v", err)
	}
	if !sel.Assigned() {
		o.setStatus(call.ID, models.CallStatusUnassigned)
		o.alert(ctx, alert.SeverityWarning, "Call unassigned", "No on-call contact is available for this call.", call.ID, biz.Name)
		return Result{
			Success: true, CallID: call.ID, Status: models.CallStatusUnassigned,
			Reason: "no on-call contact available", Urgency: cls.Level,
		}
	}
	primary := *sel.Primary

	info := packet.CallInfo{
		CallerName:    norm.CallerName,
		CallerPhone:   call.CallerPhone,
		IssueSummary:  call.IssueSummary,
		Urgency:       cls.Level,
		EmergencyNote: call.EmergencyNote,
		BusinessName:  biz.Name,
	}

	// First attempt goes out directly; the engine owns everything after it.
	info.AckLink = o.ackLink(call.ID, primary.ID)
	textRes := o.firstAttempt(ctx, call.ID, primary, info)
	o.setStatus(call.ID, models.CallStatusDispatching)

	if o.wantSecondary(biz, cls.Level, textRes) {
		o.secondaryAttempt(ctx, call.ID, primary)
	}

	o.engine.Start(retry.StartOpts{
		CallID:   call.ID,
		Urgency:  cls.Level,
		Info:     info,
		Contacts: sel.Contacts(),
	})

	return Result{
		Success:         true,
		CallID:          call.ID,
		Status:          models.CallStatusDispatching,
		Urgency:         cls.Level,
		ContactName:     primary.Name,
		ContactPhone:    primary.Phone,
		DispatchSuccess: textRes.Success,
	}
}

func (o *Orchestrator) buildCall(norm Normalized, match business.Resolution, cls urgency.Classification) *models.Call {
	summary := norm.IssueSummary
	if summary == "" && norm.Transcript != "" {
		summary = norm.Transcript
		if len(summary) > 500 {
			summary = summary[:500]
		}
	}

	call := &models.Call{
		ID:             uuid.NewString(),
		SourceCallID:   norm.SourceCallID,
		CallerPhone:    norm.CallerPhone,
		ToNumber:       norm.DialedNumber,
		IssueSummary:   summary,
		Transcript:     norm.Transcript,
		EmergencyLevel: cls.Level,
		EmergencyNote:  cls.Reason,
		Status:         models.CallStatusNew,
	}
	if match.Business != nil {
		id := match.Business.ID
		call.BusinessID = &id
	}
	return call
}

func (o *Orchestrator) firstAttempt(ctx context.Context, callID string, contact models.RosterEntry, info packet.CallInfo) notify.Result {
	res, err := o.sender.Send(ctx, notify.Attempt{
		CallID:    callID,
		ContactID: contact.ID,
		Channel:   models.EventChannelText,
		To:        contact.Phone,
		Body:      packet.BuildSMS(info),
		Number:    1,
	})
	if err != nil {
		o.logger.Printf("dispatcher: first attempt for call %s errored: %v", callID, err)
	}
	return res
}

func (o *Orchestrator) secondaryAttempt(ctx context.Context, callID string, contact models.RosterEntry) {
	promptURL := fmt.Sprintf("%s/webhooks/telephony/ack-call?callId=%s&contactId=%s", o.baseURL, callID, contact.ID)
	_, err := o.sender.Send(ctx, notify.Attempt{
		CallID:    callID,
		ContactID: contact.ID,
		Channel:   models.EventChannelVoice,
		To:        contact.Phone,
		PromptURL: promptURL,
		Number:    1,
	})
	if err != nil {
		o.logger.Printf("dispatcher: secondary attempt for call %s errored: %v", callID, err)
	}
}

func (o *Orchestrator) ackLink(callID, contactID string) string {
	if o.minter == nil {
		return ""
	}
	token, err := o.minter.Mint(callID, contactID, o.now())
	if err != nil {
		o.logger.Printf("dispatcher: mint ack link for call %s: %v", callID, err)
		return ""
	}
	return fmt.Sprintf("%s/api/ack/%s/%s", o.baseURL, callID, token)
}

// wantSecondary applies the configured disjunction of secondary-channel
// triggers. Its outcome never downgrades the reported status.
func (o *Orchestrator) wantSecondary(biz *models.Business, level string, textRes notify.Result) bool {
	switch {
	case o.policy.OnOptIn && biz.VoiceFallback:
		return true
	case o.policy.OnHighUrgency && level == urgency.LevelHigh:
		return true
	case o.policy.OnCarrierBlock && textRes.Blocked():
		return true
	case o.policy.OnPrimaryFail && !textRes.Success:
		return true
	}
	return false
}

func (o *Orchestrator) setStatus(callID, status string) {
	if err := o.records.UpdateCallStatus(callID, status, ""); err != nil {
		o.logger.Printf("dispatcher: status update for call %s: %v", callID, err)
	}
}

func (o *Orchestrator) alert(ctx context.Context, severity, title, body, callID, bizName string) {
	err := o.alerts.Notify(ctx, alert.Alert{
		Severity: severity,
		Title:    title,
		Body:     body,
		CallID:   callID,
		Business: bizName,
	})
	if err != nil {
		o.logger.Printf("dispatcher: alert delivery failed for call %s: %v", callID, err)
	}
}

// failSafe is the last-resort path: record what we can, alert, and still
// answer with a handled result.
func (o *Orchestrator) failSafe(ctx context.Context, raw json.RawMessage, reason string) Result {
	call := &models.Call{
		ID:           uuid.NewString(),
		IssueSummary: "ERROR: " + reason,
		Status:       models.CallStatusNeedsReview,
	}
	if raw != nil {
		if norm, err := Normalize(raw); err == nil {
			call.SourceCallID = norm.SourceCallID
			call.CallerPhone = norm.CallerPhone
			call.Transcript = norm.Transcript
		}
	}
	if err := o.records.CreateCall(call); err != nil {
		o.logger.Printf("dispatcher: error call record creation failed: %v", err)
	}
	o.alert(ctx, alert.SeverityError, "Dispatch error", reason, call.ID, "")
	return Result{
		Success: true,
		CallID:  call.ID,
		Status:  models.CallStatusNeedsReview,
		Reason:  reason,
	}
}
