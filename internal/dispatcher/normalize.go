package dispatcher

import (
	"encoding/json"
	"fmt"
)

// Normalized is the single internal shape every inbound payload reduces to.
type Normalized struct {
	SourceCallID   string
	CallerPhone    string
	CallerName     string
	DialedNumber   string
	EmergencyLevel string
	IssueSummary   string
	Transcript     string
	BusinessID     string
	IVRSelection   string
}

// rawPayload holds every field any of the three known payload shapes can
// carry: the voice-agent webhook (nested call object), the telephony status
// callback (flat, CallSid-keyed), and the direct API shape.
type rawPayload struct {
	Call *struct {
		CallID     string            `json:"call_id"`
		FromNumber string            `json:"from_number"`
		ToNumber   string            `json:"to_number"`
		Transcript string            `json:"transcript"`
		Variables  map[string]string `json:"variables"`
	} `json:"call"`
	Metadata        map[string]string `json:"metadata"`
	CustomVariables map[string]string `json:"custom_variables"`

	CallSid           string `json:"CallSid"`
	TelephonyFrom     string `json:"From"`
	TelephonyTo       string `json:"To"`
	TranscriptionText string `json:"TranscriptionText"`

	CallerPhone    string `json:"callerPhone"`
	CallerName     string `json:"callerName"`
	From           string `json:"from"`
	EmergencyLevel string `json:"emergencyLevel"`
	Urgency        string `json:"urgency"`
	IssueSummary   string `json:"issueSummary"`
	Summary        string `json:"summary"`
	Transcript     string `json:"transcript"`
	ToNumber       string `json:"toNumber"`
	TwilioToNumber string `json:"twilioToNumber"`
	BusinessID     string `json:"businessId"`
	CallID         string `json:"callId"`
	IVRSelection   string `json:"ivrSelection"`
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Normalize detects which source produced the payload by field presence and
// maps it onto the internal shape.
func Normalize(raw json.RawMessage) (Normalized, error) {
	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Normalized{}, fmt.Errorf("dispatcher: decode payload: %w", err)
	}

	// Voice-agent webhook: nested call object with agent-captured variables.
	if p.Call != nil {
		vars := p.Call.Variables
		if len(vars) == 0 {
			vars = p.Metadata
		}
		if len(vars) == 0 {
			vars = p.CustomVariables
		}
		return Normalized{
			SourceCallID:   first(p.Call.CallID, p.CallID),
			CallerPhone:    first(vars["callback_number"], vars["callback_phone"], vars["callerPhone"], p.Call.FromNumber),
			CallerName:     first(vars["caller_name"], vars["callerName"]),
			DialedNumber:   first(p.Call.ToNumber, vars["twilio_to_number"]),
			EmergencyLevel: first(vars["emergency_level"], vars["emergencyLevel"], vars["urgency"]),
			IssueSummary:   first(vars["issue_summary"], vars["issue"], vars["issueSummary"]),
			Transcript:     first(p.Call.Transcript, p.Transcript),
			BusinessID:     p.BusinessID,
			IVRSelection:   first(vars["ivr_selection"], p.IVRSelection),
		}, nil
	}

	// Telephony status callback: flat fields keyed by the provider call sid.
	if p.CallSid != "" {
		return Normalized{
			SourceCallID:   first(p.CallSid, p.CallID),
			CallerPhone:    p.TelephonyFrom,
			DialedNumber:   p.TelephonyTo,
			EmergencyLevel: first(p.EmergencyLevel, p.Urgency),
			IssueSummary:   first(p.IssueSummary, p.Summary),
			Transcript:     first(p.TranscriptionText, p.Transcript),
			BusinessID:     p.BusinessID,
			IVRSelection:   p.IVRSelection,
		}, nil
	}

	// Direct API shape.
	return Normalized{
		SourceCallID:   p.CallID,
		CallerPhone:    first(p.CallerPhone, p.From),
		CallerName:     p.CallerName,
		DialedNumber:   first(p.TwilioToNumber, p.ToNumber),
		EmergencyLevel: first(p.EmergencyLevel, p.Urgency),
		IssueSummary:   first(p.IssueSummary, p.Summary),
		Transcript:     p.Transcript,
		BusinessID:     p.BusinessID,
		IVRSelection:   p.IVRSelection,
	}, nil
}
