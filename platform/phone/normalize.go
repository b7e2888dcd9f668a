// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "AE"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// CanonicalAddress derives the identity key for a channel address.
// WhatsApp sender addresses arrive as "<digits>@s.whatsapp.net" or bare
// phone strings; both normalize to the same E.164 key so retried and
// concurrent deliveries resolve to one contact.
func CanonicalAddress(raw string) string {
	addr := strings.TrimSpace(raw)
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		addr = addr[:at]
	}
	if addr != "" && !strings.HasPrefix(addr, "+") {
		addr = "+" + addr
	}
	return NormalizeE164(addr)
}
