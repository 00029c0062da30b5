// Package packet builds the dispatch summaries sent to on-call techs.
package packet

import (
	"fmt"
	"strings"

	"github.com/zulandar/afterhours/internal/urgency"
)

// Text messages above this length get cut down to the essential lines.
const smsTruncateAt = 1500

// CallInfo is everything the builders need about the call being dispatched.
type CallInfo struct {
	CallerName    string
	CallerPhone   string
	AddressLine1  string
	City          string
	State         string
	Zip           string
	IssueSummary  string
	Urgency       string
	EmergencyNote string
	ContactPref   string
	BestTime      string
	AckLink       string
	BusinessName  string
}

func urgencyBadge(level string) (emoji, label string) {
	switch level {
	case urgency.LevelHigh:
		return "\U0001F6A8", "EMERGENCY"
	case urgency.LevelMedium:
		return "⚠️", "URGENT"
	default:
		return "ℹ️", "ROUTINE"
	}
}

func address(in CallInfo) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{in.AddressLine1, in.City, in.State, in.Zip} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "Address not provided"
	}
	return strings.Join(parts, ", ")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Build assembles the full dispatch summary.
func Build(in CallInfo) string {
	emoji, label := urgencyBadge(in.Urgency)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s - After-Hours Call\n\n", emoji, label)
	fmt.Fprintf(&b, "Name: %s\n", orDefault(in.CallerName, "Not provided"))
	fmt.Fprintf(&b, "Phone: %s\n", orDefault(in.CallerPhone, "Not provided"))
	fmt.Fprintf(&b, "Address: %s\n\n", address(in))
	fmt.Fprintf(&b, "Issue: %s\n", orDefault(in.IssueSummary, "See transcript"))

	if in.EmergencyNote != "" {
		fmt.Fprintf(&b, "Reason: %s\n", in.EmergencyNote)
	}
	if in.ContactPref != "" {
		fmt.Fprintf(&b, "Preferred contact: %s\n", in.ContactPref)
	}
	if in.BestTime != "" {
		fmt.Fprintf(&b, "Best time: %s\n", in.BestTime)
	}
	if in.AckLink != "" {
		fmt.Fprintf(&b, "\nAcknowledge: %s\n", in.AckLink)
	}

	if in.Urgency == urgency.LevelHigh {
		b.WriteString("\nACTION REQUIRED: Please contact customer immediately.")
	} else {
		b.WriteString("\nPlease contact customer to schedule service.")
	}
	b.WriteString("\nReply YES to accept this call.")
	return b.String()
}

// BuildSMS returns the summary trimmed to fit a single text message. When the
// full packet is too long only the header, contact, issue and action lines
// survive.
func BuildSMS(in CallInfo) string {
	full := Build(in)
	if len(full) <= smsTruncateAt {
		return full
	}

	lines := strings.Split(full, "\n")
	essential := []string{lines[0]}
	for _, prefix := range []string{"Name:", "Phone:", "Address:", "Issue:", "Acknowledge:"} {
		for _, l := range lines {
			if strings.HasPrefix(l, prefix) {
				essential = append(essential, l)
				break
			}
		}
	}
	essential = append(essential, lines[len(lines)-1])
	return strings.Join(essential, "\n") + "\n\n(Message truncated)"
}

// BuildVoicePrompt returns the text read aloud on an escalation call. The
// listener is told to press 1 to accept.
func BuildVoicePrompt(in CallInfo) string {
	_, label := urgencyBadge(in.Urgency)

	var b strings.Builder
	fmt.Fprintf(&b, "This is an after-hours dispatch for %s. ", orDefault(in.BusinessName, "your business"))
	fmt.Fprintf(&b, "%s service call from %s. ", label, orDefault(in.CallerName, "an unnamed caller"))
	fmt.Fprintf(&b, "Issue: %s. ", orDefault(in.IssueSummary, "details were left in the transcript"))
	if in.City != "" {
		fmt.Fprintf(&b, "Location: %s. ", in.City)
	}
	b.WriteString("Press 1 to accept this call.")
	return b.String()
}
