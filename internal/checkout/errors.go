package checkout

import (
	"errors"
	"fmt"
)

// Terminal errors. Each is returned before any message is submitted, except
// ErrDeliverySubmissionFailed, which means the submission itself failed.
var (
	ErrUnauthorized          = errors.New("checkout: unauthorized")
	ErrInvalidOrder          = errors.New("checkout: invalid order")
	ErrTotalMismatch         = errors.New("checkout: declared total does not match line items")
	ErrRateLimited           = errors.New("checkout: too many checkouts, try again later")
	ErrProfileNotFound       = errors.New("checkout: profile not found")
	ErrMissingContactAddress = errors.New("checkout: profile has no email address")

	ErrDeliverySubmissionFailed = errors.New("checkout: delivery submission failed")
)

// ErrRecordPersistenceFailed is logged, never returned to the caller: the
// email was already accepted when it happens.
var ErrRecordPersistenceFailed = errors.New("checkout: send record persistence failed")

// SubmissionError carries the upstream failure detail. It matches both
// ErrDeliverySubmissionFailed and the underlying error with errors.Is.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrDeliverySubmissionFailed, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrDeliverySubmissionFailed, e.Err}
}
