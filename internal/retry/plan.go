package retry

import (
	"time"

	"github.com/zulandar/afterhours/internal/models"
)

// Timing is the escalation schedule for one urgency tier. Offsets are
// measured from sequence start, one per scheduled attempt after the first,
// so attempt scheduling drift can never push past the cutoff.
type Timing struct {
	Offsets     []time.Duration
	Cutoff      time.Duration
	MaxAttempts int
}

// step names the channel and contact for one scheduled attempt. Attempt 1
// is performed by the orchestrator before the sequence starts; the plan
// covers attempts 2 and up, alternating voice and text while walking
// primary, then backup one, then backup two.
type step struct {
	channel      string
	contactIndex int
}

func planStep(attempt int) step {
	s := step{contactIndex: (attempt - 1) / 2}
	if attempt%2 == 0 {
		s.channel = models.EventChannelVoice
	} else {
		s.channel = models.EventChannelText
	}
	return s
}

// contactFor resolves a plan step against the contacts actually on file,
// falling back toward the primary when a backup slot is empty.
func contactFor(contacts []models.RosterEntry, idx int) models.RosterEntry {
	if idx >= len(contacts) {
		idx = len(contacts) - 1
	}
	return contacts[idx]
}
