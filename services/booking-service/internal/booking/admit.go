package booking

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/outbox"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

// Admitter is the only write path that creates occupying ledger rows. It
// serializes per provider so concurrent overlapping requests resolve as
// exactly one success and the rest ErrSlotConflict.
type Admitter struct {
	store  Store
	clock  Clock
	logger *slog.Logger
	newOTP func() string
}

func NewAdmitter(store Store, clock Clock, logger *slog.Logger) *Admitter {
	return &Admitter{
		store:  store,
		clock:  clock,
		logger: logger,
		newOTP: newOTP,
	}
}

type AdmitRequest struct {
	ProviderID    uuid.UUID
	CustomerID    uuid.UUID
	Date          time.Time
	StartMinute   int
	EndMinute     int // 0 or == StartMinute defaults to the service duration
	Address       string
	PaymentMethod string
}

// Admit validates, serializes on the provider, re-checks the ledger for
// overlap, and inserts the booking. The confirmation event is written to the
// outbox inside the same transaction; publishing it is asynchronous and can
// never roll the booking back.
func (a *Admitter) Admit(ctx context.Context, req AdmitRequest) (*model.Booking, error) {
	if req.ProviderID == uuid.Nil || req.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id and customer_id are required", ErrValidation)
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrValidation)
	}
	date := model.DateOnly(req.Date)

	tx, err := a.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin admission tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.LockProvider(ctx, req.ProviderID); err != nil {
		return nil, err
	}

	provider, err := tx.Provider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Active {
		return nil, ErrProviderNotFound
	}

	iv, err := resolveInterval(req, provider)
	if err != nil {
		return nil, err
	}

	conflict, err := tx.HasOverlap(ctx, req.ProviderID, date, iv)
	if err != nil {
		return nil, fmt.Errorf("overlap check: %w", err)
	}
	if conflict {
		return nil, ErrSlotConflict
	}

	now := a.clock.Now()
	b := &model.Booking{
		ID:            uuid.New(),
		ProviderID:    req.ProviderID,
		CustomerID:    req.CustomerID,
		ServiceID:     provider.ServiceID,
		Date:          date,
		StartMinute:   iv.Start,
		EndMinute:     iv.End,
		Status:        model.StatusBooked,
		Address:       req.Address,
		PriceCents:    provider.PriceCents, // server-resolved, never client-supplied
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: model.PaymentPending,
		OTP:           a.newOTP(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return nil, err
	}
	if err := tx.SetSlotBooked(ctx, req.ProviderID, date, iv, true); err != nil {
		return nil, fmt.Errorf("flag cached slots: %w", err)
	}
	if err := tx.AppendEvent(ctx, outbox.EventBookingConfirmed, outbox.BookingPayload(b)); err != nil {
		return nil, fmt.Errorf("append confirmation event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}

	a.logger.Info("booking admitted",
		"booking_id", b.ID,
		"provider_id", b.ProviderID,
		"date", date.Format("2006-01-02"),
		"interval", iv.String(),
	)
	return b, nil
}

func resolveInterval(req AdmitRequest, provider *model.Provider) (timeutil.Interval, error) {
	iv := timeutil.Interval{Start: req.StartMinute, End: req.EndMinute}
	if iv.End == 0 || iv.End == iv.Start {
		duration := provider.DurationMinutes
		if duration <= 0 {
			duration = 60
		}
		iv.End = iv.Start + duration
	}
	if !iv.Valid() {
		return timeutil.Interval{}, fmt.Errorf("%w: interval %s is not a valid booking range", ErrValidation, iv)
	}
	return iv, nil
}

// newOTP returns a 4-digit code for the in-person start-of-service check.
// Proof of presence, not a security boundary.
func newOTP() string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	n := (int(b[0])<<8 | int(b[1])) % 10000
	return fmt.Sprintf("%04d", n)
}
