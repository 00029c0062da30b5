// Package acks recognizes and records dispatch acknowledgments, whether they
// arrive as an SMS reply, an IVR keypress, or a secure link click.
package acks

import "strings"

// Replies that count as accepting the dispatch. Matched case-insensitively
// as substrings of the trimmed reply body.
var ackKeywords = []string{"Y", "YES", "ON IT", "TAKING", "CLAIM", "ACCEPT", "OK", "GOT IT"}

// IsAcknowledgment reports whether an inbound reply accepts the dispatch.
func IsAcknowledgment(body string) bool {
	upper := strings.ToUpper(strings.TrimSpace(body))
	if upper == "" {
		return false
	}
	for _, kw := range ackKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
