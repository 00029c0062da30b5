// Package alert notifies operators and business owners about dispatches that
// need a human: unmatched calls, empty rosters, and escalations that ran out.
package alert

import (
	"context"
	"log"
)

// Severity levels for operator alerts.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Alert is one operator notification.
type Alert struct {
	Severity string
	Title    string
	Body     string
	CallID   string
	Business string
}

// Notifier delivers operator alerts to a chat platform.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the process log. It is the fallback when no
// chat platform is configured.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("alert [%s] %s (call=%s business=%s): %s", a.Severity, a.Title, a.CallID, a.Business, a.Body)
	return nil
}
