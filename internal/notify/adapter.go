// Package notify delivers dispatch attempts to on-call techs over text and
// voice, and records one dispatch event per attempt.
package notify

import "context"

// Carrier error code for A2P-blocked text messages.
const CodeCarrierBlocked = 30034

// Adapter is the interface telephony providers implement. Provider failures
// come back inside Result, not as an error; the error return is reserved for
// programming mistakes such as an unconfigured adapter.
type Adapter interface {
	// SendText delivers an SMS to the given number.
	SendText(ctx context.Context, to, body string) (Result, error)

	// SendVoice places an outbound call that fetches call instructions
	// from promptURL.
	SendVoice(ctx context.Context, to, promptURL string) (Result, error)
}

// Result is the outcome of a single delivery attempt.
type Result struct {
	Success     bool
	ProviderSID string // provider message/call identifier, when one was issued
	Status      string // provider delivery status at send time
	ErrCode     int    // provider error code, 0 when none
	Error       string // human-readable failure detail
}

// Blocked reports whether the attempt was rejected by carrier filtering.
func (r Result) Blocked() bool { return r.ErrCode == CodeCarrierBlocked }
