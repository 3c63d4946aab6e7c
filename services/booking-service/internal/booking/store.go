package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

// Store opens the transactional scope admission and lifecycle run in. It is
// injected so tests can substitute an in-memory double for the Postgres
// implementation.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transaction against the booking ledger. Rollback after Commit
// must be a no-op so callers can defer it unconditionally.
type Tx interface {
	// LockProvider serializes concurrent admissions for one provider. The
	// wait is bounded; ErrLockTimeout reports exhaustion. Held until the
	// transaction ends.
	LockProvider(ctx context.Context, providerID uuid.UUID) error

	// Provider returns the provider row or ErrProviderNotFound.
	Provider(ctx context.Context, providerID uuid.UUID) (*model.Provider, error)

	// HasOverlap reports whether any occupying booking for the provider and
	// date overlaps iv.
	HasOverlap(ctx context.Context, providerID uuid.UUID, date time.Time, iv timeutil.Interval) (bool, error)

	// InsertBooking writes a new ledger row. A constraint-level double
	// booking surfaces as ErrSlotConflict.
	InsertBooking(ctx context.Context, b *model.Booking) error

	// BookingForUpdate row-locks and returns the booking, or
	// ErrBookingNotFound.
	BookingForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error)

	// SetBookingStatus updates status and, when paymentStatus is non-empty,
	// the payment status.
	SetBookingStatus(ctx context.Context, id uuid.UUID, status model.Status, paymentStatus model.PaymentStatus) error

	// SetSlotBooked flags materialized cache slots overlapping iv. Cache
	// maintenance only; never consulted for conflicts.
	SetSlotBooked(ctx context.Context, providerID uuid.UUID, date time.Time, iv timeutil.Interval, booked bool) error

	// AppendEvent records a domain event for asynchronous publication in
	// the same transaction as the state change it describes.
	AppendEvent(ctx context.Context, eventType string, payload any) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
