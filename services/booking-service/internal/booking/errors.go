package booking

import (
	"errors"
	"fmt"

	"github.com/servihub/servihub/services/booking-service/internal/model"
)

var (
	// ErrSlotConflict is the expected "someone booked first" outcome of
	// admission. Callers branch on it; it is not a fault.
	ErrSlotConflict = errors.New("slot conflict")

	// ErrLockTimeout means the per-provider serialization lock could not be
	// acquired within its bounded wait. Retryable by the client as a fresh
	// request.
	ErrLockTimeout = errors.New("admission lock timeout")

	ErrProviderNotFound = errors.New("provider not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidation       = errors.New("validation failed")
)

// ErrInvalidTransition is the sentinel matched by errors.Is for every
// rejected lifecycle transition.
var ErrInvalidTransition = errors.New("invalid transition")

// InvalidTransitionError carries the specific guard that rejected a
// transition so clients can explain it.
type InvalidTransitionError struct {
	From   model.Status
	To     model.Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidTransition(from, to model.Status, reason string) error {
	return &InvalidTransitionError{From: from, To: to, Reason: reason}
}
