// Package urgency classifies incoming service calls as LOW, MEDIUM or HIGH.
//
// Classification runs in priority order: an agent-captured emergency level
// wins outright, then business-specific keywords, then phrase patterns, then
// the general keyword list. Anything with no indicators lands on MEDIUM.
package urgency

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"
)

const (
	ConfidenceLow    = "LOW"
	ConfidenceMedium = "MEDIUM"
	ConfidenceHigh   = "HIGH"
)

// Input carries the raw call fields the classifier inspects.
type Input struct {
	EmergencyLevel string
	Transcript     string
	IssueSummary   string
	EmergencyNote  string
}

// Classification is the outcome of a single classification pass.
type Classification struct {
	Level      string
	Confidence string
	Reason     string
}

var emergencyKeywords = []string{
	// Plumbing
	"no water",
	"water leak",
	"burst pipe",
	"flooding",
	"sewage backup",
	"sewer backup",
	"sewage smell",
	"gas smell",
	"gas leak",
	"no heat",
	"frozen pipe",
	"water damage",

	// HVAC
	"no air",
	"furnace broken",
	"ac broken",
	"carbon monoxide",

	// Electrical
	"sparking",
	"electrical fire",
	"power outage",
	"circuit breaker",
	"smoke",
	"burning smell",

	// General
	"emergency",
	"urgent",
	"asap",
	"immediately",
	"right now",
}

var highUrgencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no (water|heat|air)`),
	regexp.MustCompile(`(?i)(burst|broken|leaking) (pipe|line|main)`),
	regexp.MustCompile(`(?i)(flood|flooding)`),
	regexp.MustCompile(`(?i)(sewage|sewer) (backup|smell|overflow)`),
	regexp.MustCompile(`(?i)gas (smell|leak)`),
	regexp.MustCompile(`(?i)(spark|sparking)`),
	regexp.MustCompile(`(?i)(fire|smoke|burning)`),
	regexp.MustCompile(`(?i)carbon monoxide`),
}

// Classify determines the urgency of a call. The extraKeywords slice holds
// business-specific emergency terms and takes precedence over the built-in
// keyword list.
func Classify(in Input, extraKeywords []string) Classification {
	if lvl := strings.ToUpper(strings.TrimSpace(in.EmergencyLevel)); lvl != "" {
		switch lvl {
		case "HIGH", "EMERGENCY", "CRITICAL":
			return Classification{
				Level:      LevelHigh,
				Confidence: ConfidenceHigh,
				Reason:     "agent-captured emergency level",
			}
		case "LOW", "NON-EMERGENCY":
			return Classification{
				Level:      LevelLow,
				Confidence: ConfidenceHigh,
				Reason:     "agent-captured non-emergency",
			}
		}
	}

	text := strings.ToLower(strings.Join([]string{
		in.Transcript,
		in.IssueSummary,
		in.EmergencyNote,
	}, " "))

	if strings.TrimSpace(text) == "" {
		return Classification{
			Level:      LevelMedium,
			Confidence: ConfidenceLow,
			Reason:     "no text available for classification",
		}
	}

	for _, kw := range extraKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return Classification{
				Level:      LevelHigh,
				Confidence: ConfidenceHigh,
				Reason:     fmt.Sprintf("business emergency keyword: %s", kw),
			}
		}
	}

	for _, pat := range highUrgencyPatterns {
		if pat.MatchString(text) {
			return Classification{
				Level:      LevelHigh,
				Confidence: ConfidenceMedium,
				Reason:     fmt.Sprintf("pattern match: %s", pat.String()),
			}
		}
	}

	for _, kw := range emergencyKeywords {
		if strings.Contains(text, kw) {
			return Classification{
				Level:      LevelHigh,
				Confidence: ConfidenceMedium,
				Reason:     fmt.Sprintf("emergency keyword: %s", kw),
			}
		}
	}

	return Classification{
		Level:      LevelMedium,
		Confidence: ConfidenceLow,
		Reason:     "no emergency indicators found",
	}
}

// Normalize maps a stored urgency string back onto a known level, defaulting
// to MEDIUM for anything unrecognized. Used when re-deriving urgency from a
// persisted call record.
func Normalize(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelHigh:
		return LevelHigh
	case LevelLow:
		return LevelLow
	default:
		return LevelMedium
	}
}
