// Package reply produces outbound reply text: a model-backed generator with
// a hard timeout, and the pure high-risk classifier that decides when no
// automated reply may be sent at all.
package reply

import (
	"strings"
)

// highRiskPhrases trigger the no-automated-reply path: the message is routed
// straight to a human and the bot stays silent. Matching is substring-based
// on the lowercased body, same as intent detection.
var highRiskPhrases = []string{
	"deport",
	"detained",
	"arrest",
	"in jail",
	"in prison",
	"police station",
	"passport confiscated",
	"passport taken",
	"emergency",
	"accident",
	"hospital",
	"passed away",
	"died",
	"death certificate",
	"abuse",
	"threaten",
	"blackmail",
	"human traffick",
	"asylum",
	"refugee",
}

// IsHighRisk reports whether the message must bypass automation entirely.
// Pure function; trivially testable against literal bodies.
func IsHighRisk(body string) bool {
	lower := strings.ToLower(body)
	for _, phrase := range highRiskPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
