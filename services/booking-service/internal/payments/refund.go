// Package payments holds the cancellation refund policy and its Stripe
// issuance. Refunds are a best-effort side effect of a committed
// cancellation, never part of the core transaction.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v79"
	striperefund "github.com/stripe/stripe-go/v79/refund"

	"github.com/servihub/servihub/services/booking-service/internal/model"
)

// RefundPolicy maps cancellation lead time to a refund percentage.
type RefundPolicy struct {
	// FullRefundLead is the minimum time before the scheduled start for a
	// 100% refund.
	FullRefundLead time.Duration
	// PartialPercent applies to closer-in cancellations.
	PartialPercent int
}

func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{FullRefundLead: 24 * time.Hour, PartialPercent: 50}
}

// Percent returns the refund percentage for a booking cancelled at
// cancelledAt.
func (p RefundPolicy) Percent(b *model.Booking, cancelledAt time.Time) int {
	if cancelledAt.Before(b.StartAt().Add(-p.FullRefundLead)) {
		return 100
	}
	return p.PartialPercent
}

// StripeRefunder issues refunds against the payment intent recorded on the
// booking.
type StripeRefunder struct {
	policy RefundPolicy
	logger *slog.Logger
}

func NewStripeRefunder(secretKey string, policy RefundPolicy, logger *slog.Logger) *StripeRefunder {
	stripe.Key = secretKey
	return &StripeRefunder{policy: policy, logger: logger}
}

func (r *StripeRefunder) RefundForCancellation(_ context.Context, b *model.Booking, cancelledAt time.Time) error {
	// payment_ref is written by the payment capture flow when an online
	// charge succeeds; bookings this service created itself carry none yet.
	if b.PaymentStatus != model.PaymentRefunded || b.PaymentRef == "" {
		// Nothing captured, or cash on delivery: no money to move.
		return nil
	}
	percent := r.policy.Percent(b, cancelledAt)
	amount := b.PriceCents * int64(percent) / 100
	if amount <= 0 {
		return nil
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(b.PaymentRef),
		Amount:        stripe.Int64(amount),
	}
	// Deterministic key: retrying the same cancellation never double-refunds.
	params.IdempotencyKey = stripe.String("refund:" + b.ID.String())

	ref, err := striperefund.New(params)
	if err != nil {
		return fmt.Errorf("stripe refund for booking %s: %w", b.ID, err)
	}
	r.logger.Info("refund issued",
		"booking_id", b.ID,
		"refund_id", ref.ID,
		"percent", percent,
		"amount_cents", amount,
	)
	return nil
}

// NoopRefunder is used when no payment processor is configured (local
// development, cash-only deployments).
type NoopRefunder struct {
	Logger *slog.Logger
}

func (n NoopRefunder) RefundForCancellation(_ context.Context, b *model.Booking, _ time.Time) error {
	if n.Logger != nil {
		n.Logger.Info("refund skipped: no payment processor configured", "booking_id", b.ID)
	}
	return nil
}
