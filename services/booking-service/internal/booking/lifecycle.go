package booking

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/libs/auth"
	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/outbox"
)

// Refunder issues the compensating refund after a cancellation commits.
// Best-effort: failures are logged, never propagated.
type Refunder interface {
	RefundForCancellation(ctx context.Context, b *model.Booking, cancelledAt time.Time) error
}

// Lifecycle applies role-gated, time-guarded status transitions to ledger
// rows. Every transition runs under a row lock; terminal rows are immutable.
type Lifecycle struct {
	store   Store
	clock   Clock
	policy  Policy
	refunds Refunder
	logger  *slog.Logger
}

func NewLifecycle(store Store, clock Clock, policy Policy, refunds Refunder, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{store: store, clock: clock, policy: policy, refunds: refunds, logger: logger}
}

type TransitionRequest struct {
	BookingID uuid.UUID
	ActorID   uuid.UUID
	ActorRole string // auth.RoleCustomer, auth.RoleProvider or auth.RoleAdmin
	Target    model.Status
	OTP       string // required when a provider starts service
}

// Transition moves the booking to req.Target if the state machine permits
// it. Rejections are ErrInvalidTransition (guard failed), ErrUnauthorized
// (wrong actor or OTP), or ErrBookingNotFound.
func (l *Lifecycle) Transition(ctx context.Context, req TransitionRequest) (*model.Booking, error) {
	if !req.Target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Target)
	}

	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.BookingForUpdate(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if err := l.authorizeActor(req, b); err != nil {
		return nil, err
	}

	now := l.clock.Now()

	// A booked row past its expiry buffer is dead even if the sweeper has
	// not reached it yet. Persist the flip, then reject the request.
	if b.Status == model.StatusBooked && now.After(b.EndAt().Add(l.policy.ExpiryBuffer)) {
		if err := l.expireInTx(ctx, tx, b); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit expiry: %w", err)
		}
		return nil, invalidTransition(model.StatusBooked, req.Target, "booking has expired")
	}

	if b.Status.Terminal() {
		return nil, invalidTransition(b.Status, req.Target, "booking is finalized")
	}

	if err := l.checkGuards(req, b, now); err != nil {
		return nil, err
	}

	paymentStatus := model.PaymentStatus("")
	if req.Target == model.StatusCancelled && b.PaymentStatus == model.PaymentPaid {
		paymentStatus = model.PaymentRefunded
	}
	if err := tx.SetBookingStatus(ctx, b.ID, req.Target, paymentStatus); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if req.Target == model.StatusCancelled {
		// Release the cached inventory so the window shows free again.
		if err := tx.SetSlotBooked(ctx, b.ProviderID, b.Date, b.Interval(), false); err != nil {
			return nil, fmt.Errorf("release cached slots: %w", err)
		}
	}

	prior := b.Status
	b.Status = req.Target
	if paymentStatus != "" {
		b.PaymentStatus = paymentStatus
	}
	b.UpdatedAt = now

	if eventType := eventForStatus(req.Target); eventType != "" {
		if err := tx.AppendEvent(ctx, eventType, outbox.BookingPayload(b)); err != nil {
			return nil, fmt.Errorf("append %s: %w", eventType, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	l.logger.Info("booking transitioned",
		"booking_id", b.ID,
		"from", prior,
		"to", b.Status,
		"actor_role", req.ActorRole,
	)

	if req.Target == model.StatusCancelled && l.refunds != nil {
		if err := l.refunds.RefundForCancellation(ctx, b, now); err != nil {
			l.logger.Warn("refund issuance failed", "booking_id", b.ID, "err", err)
		}
	}
	return b, nil
}

func (l *Lifecycle) authorizeActor(req TransitionRequest, b *model.Booking) error {
	switch req.ActorRole {
	case auth.RoleAdmin:
		return nil
	case auth.RoleCustomer:
		if req.ActorID != b.CustomerID {
			return fmt.Errorf("%w: booking belongs to another customer", ErrUnauthorized)
		}
	case auth.RoleProvider:
		if req.ActorID != b.ProviderID {
			return fmt.Errorf("%w: booking belongs to another provider", ErrUnauthorized)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrUnauthorized, req.ActorRole)
	}
	return nil
}

func (l *Lifecycle) checkGuards(req TransitionRequest, b *model.Booking, now time.Time) error {
	start := b.StartAt()
	switch req.Target {
	case model.StatusInProgress:
		if req.ActorRole != auth.RoleProvider && req.ActorRole != auth.RoleAdmin {
			return fmt.Errorf("%w: only the provider can start service", ErrUnauthorized)
		}
		if b.Status != model.StatusBooked {
			return invalidTransition(b.Status, req.Target, "service can only start from booked")
		}
		if subtle.ConstantTimeCompare([]byte(req.OTP), []byte(b.OTP)) != 1 {
			return fmt.Errorf("%w: otp does not match", ErrUnauthorized)
		}
	case model.StatusCompleted:
		if req.ActorRole != auth.RoleProvider && req.ActorRole != auth.RoleAdmin {
			return fmt.Errorf("%w: only the provider can complete service", ErrUnauthorized)
		}
		if b.Status != model.StatusInProgress {
			return invalidTransition(b.Status, req.Target, "service has not started")
		}
	case model.StatusCancelled:
		if b.Status != model.StatusBooked {
			return invalidTransition(b.Status, req.Target, "only booked reservations can be cancelled")
		}
		if req.ActorRole == auth.RoleProvider && !now.Before(start.Add(-l.policy.ProviderCancelLead)) {
			return invalidTransition(b.Status, req.Target,
				fmt.Sprintf("providers must cancel at least %s before the scheduled start", l.policy.ProviderCancelLead))
		}
	case model.StatusNoShow:
		if b.Status != model.StatusBooked && b.Status != model.StatusInProgress {
			return invalidTransition(b.Status, req.Target, "no-show applies to active bookings only")
		}
		if now.Before(start.Add(l.policy.NoShowGrace)) {
			return invalidTransition(b.Status, req.Target,
				fmt.Sprintf("no-show can be reported %s after the scheduled start", l.policy.NoShowGrace))
		}
	case model.StatusExpired:
		return invalidTransition(b.Status, req.Target, "expiry is applied automatically, not requested")
	default:
		return invalidTransition(b.Status, req.Target, "target status cannot be requested")
	}
	return nil
}

func (l *Lifecycle) expireInTx(ctx context.Context, tx Tx, b *model.Booking) error {
	if err := tx.SetBookingStatus(ctx, b.ID, model.StatusExpired, ""); err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	expired := *b
	expired.Status = model.StatusExpired
	if err := tx.AppendEvent(ctx, outbox.EventBookingExpired, outbox.BookingPayload(&expired)); err != nil {
		return fmt.Errorf("append expiry event: %w", err)
	}
	return nil
}

func eventForStatus(s model.Status) string {
	switch s {
	case model.StatusCancelled:
		return outbox.EventBookingCancelled
	case model.StatusCompleted:
		return outbox.EventBookingCompleted
	case model.StatusNoShow:
		return outbox.EventBookingNoShow
	}
	return ""
}
