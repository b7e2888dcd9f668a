package automation

import "errors"

// noRetryError marks a job failure that must not be retried: retrying
// cannot succeed (bad payload, auth failure) or could cause a duplicate
// customer message (ambiguous send).
type noRetryError struct {
	err error
}

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// NoRetry wraps an error so the worker fails the job terminally instead of
// scheduling another attempt.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

// IsNoRetry reports whether the error forbids another attempt.
func IsNoRetry(err error) bool {
	var nre *noRetryError
	return errors.As(err, &nre)
}
