package whatsapp

import (
	"fmt"
	"net/http"
)

// ErrorClass buckets transport failures for the dispatch guard: retryable
// classes requeue the job, terminal classes fail it and raise a human task,
// expired resources degrade gracefully.
type ErrorClass string

const (
	ClassAuth        ErrorClass = "auth"
	ClassRateLimited ErrorClass = "rate_limited"
	ClassExpired     ErrorClass = "expired"
	ClassTransient   ErrorClass = "transient"
)

// SendError is a classified transport failure.
type SendError struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	// Ambiguous means the request may have reached the provider even though
	// we saw an error (e.g. the connection dropped mid-request). Ambiguous
	// failures must never be blindly retried with a fresh send.
	Ambiguous bool
}

func (e *SendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("whatsapp send failed (%s, status %d): %s", e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("whatsapp send failed (%s): %s", e.Class, e.Message)
}

// Retryable reports whether a fresh send attempt is safe and useful.
func (e *SendError) Retryable() bool {
	if e.Ambiguous {
		return false
	}
	return e.Class == ClassRateLimited || e.Class == ClassTransient
}

// Terminal reports whether retrying cannot help.
func (e *SendError) Terminal() bool {
	return e.Class == ClassAuth
}

// classifyStatus maps a provider HTTP status onto an error class. A non-2xx
// response means the provider rejected the request, so these are never
// ambiguous.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassAuth
	case code == http.StatusTooManyRequests:
		return ClassRateLimited
	case code == http.StatusNotFound || code == http.StatusGone:
		return ClassExpired
	default:
		return ClassTransient
	}
}
