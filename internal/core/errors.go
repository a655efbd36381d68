package core

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the account aggregator layer. Mock mode never
// produces any of them.
var (
	ErrConsentRequestFailed    = errors.New("failed to request AA consent")
	ErrAccountsFetchFailed     = errors.New("failed to fetch accounts via AA")
	ErrTransactionsFetchFailed = errors.New("failed to fetch transactions via AA")

	// ErrNoConsent is only returned when the demo fallback is switched off
	// and data is requested before any consent was granted.
	ErrNoConsent   = errors.New("no active consent")
	ErrEmptyUserID = errors.New("empty user id")

	// ErrBackendUnavailable marks calls rejected locally because the live
	// backend kept failing. It is wrapped inside a BackendError.
	ErrBackendUnavailable = errors.New("AA backend unavailable")
)

// BackendError enriches a failure kind with the endpoint that produced it.
// StatusCode is zero when the request never got a response.
type BackendError struct {
	Kind       error
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprint(e.Kind)
	if e.Endpoint != "" {
		msg += ": " + e.Endpoint
	}
	switch {
	case e.StatusCode != 0 && e.Endpoint != "":
		msg += fmt.Sprintf(" returned status %d", e.StatusCode)
	case e.StatusCode != 0:
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	case e.Err != nil:
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Is matches the failure kind so callers can use errors.Is(err, ErrAccountsFetchFailed).
func (e *BackendError) Is(target error) bool {
	return target == e.Kind
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
