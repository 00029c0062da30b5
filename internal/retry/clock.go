package retry

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so tests can drive the state machine
// without real waiting.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled. It reports whether the
	// full duration elapsed.
	Sleep(ctx context.Context, d time.Duration) bool
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
