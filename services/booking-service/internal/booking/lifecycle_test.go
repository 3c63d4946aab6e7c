package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/libs/auth"
	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/outbox"
)

type recordingRefunder struct {
	calls int
	last  *model.Booking
}

func (r *recordingRefunder) RefundForCancellation(_ context.Context, b *model.Booking, _ time.Time) error {
	r.calls++
	r.last = b
	return nil
}

// seedBooking is booked 10:00-11:00 on testDate.
func seedBooking(store *memStore) *model.Booking {
	b := &model.Booking{
		ID:            uuid.New(),
		ProviderID:    uuid.New(),
		CustomerID:    uuid.New(),
		ServiceID:     uuid.New(),
		Date:          testDate,
		StartMinute:   600,
		EndMinute:     660,
		Status:        model.StatusBooked,
		PriceCents:    7500,
		PaymentMethod: "card",
		PaymentStatus: model.PaymentPaid,
		OTP:           "4321",
	}
	store.addBooking(b)
	return b
}

func newTestLifecycle(store *memStore, clock Clock, refunds Refunder) *Lifecycle {
	return NewLifecycle(store, clock, DefaultPolicy(), refunds, quietLogger())
}

func TestTransition_ProviderStartsWithOTP(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	clock := &fixedClock{now: b.StartAt()}
	l := newTestLifecycle(store, clock, nil)

	// wrong code first
	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusInProgress, OTP: "0000",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong otp: got %v, want ErrUnauthorized", err)
	}
	if store.booking(b.ID).Status != model.StatusBooked {
		t.Fatal("rejected start must not change status")
	}

	got, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusInProgress, OTP: "4321",
	})
	if err != nil {
		t.Fatalf("matching otp: %v", err)
	}
	if got.Status != model.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", got.Status)
	}
}

func TestTransition_CustomerCannotStart(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	l := newTestLifecycle(store, &fixedClock{now: b.StartAt()}, nil)

	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.CustomerID, ActorRole: auth.RoleCustomer,
		Target: model.StatusInProgress, OTP: "4321",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestTransition_NoShowTimingBoundary(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	clock := &fixedClock{}
	l := newTestLifecycle(store, clock, nil)

	// 10 minutes after start: too early.
	clock.set(b.StartAt().Add(10 * time.Minute))
	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.CustomerID, ActorRole: auth.RoleCustomer,
		Target: model.StatusNoShow,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("at +10min: got %v, want ErrInvalidTransition", err)
	}

	// 21 minutes after start: eligible.
	clock.set(b.StartAt().Add(21 * time.Minute))
	got, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.CustomerID, ActorRole: auth.RoleCustomer,
		Target: model.StatusNoShow,
	})
	if err != nil {
		t.Fatalf("at +21min: %v", err)
	}
	if got.Status != model.StatusNoShow {
		t.Fatalf("status = %s, want no_show", got.Status)
	}
}

func TestTransition_NoShowExactlyAtGrace(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	l := newTestLifecycle(store, &fixedClock{now: b.StartAt().Add(20 * time.Minute)}, nil)

	if _, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusNoShow,
	}); err != nil {
		t.Fatalf("exactly at +20min should be accepted: %v", err)
	}
}

func TestTransition_ProviderCancelLead(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	clock := &fixedClock{}
	l := newTestLifecycle(store, clock, &recordingRefunder{})

	// 90 minutes before start: inside the 2h lead, rejected.
	clock.set(b.StartAt().Add(-90 * time.Minute))
	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusCancelled,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("inside lead: got %v, want ErrInvalidTransition", err)
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) || ite.Reason == "" {
		t.Fatalf("rejection must carry the guard reason, got %v", err)
	}

	// 3 hours before start: allowed.
	clock.set(b.StartAt().Add(-3 * time.Hour))
	got, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusCancelled,
	})
	if err != nil {
		t.Fatalf("outside lead: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestTransition_CustomerCancelAnyTime(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	refunds := &recordingRefunder{}
	// 5 minutes before start, well inside the provider lead.
	l := newTestLifecycle(store, &fixedClock{now: b.StartAt().Add(-5 * time.Minute)}, refunds)

	got, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.CustomerID, ActorRole: auth.RoleCustomer,
		Target: model.StatusCancelled,
	})
	if err != nil {
		t.Fatalf("customer cancel: %v", err)
	}
	if got.PaymentStatus != model.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", got.PaymentStatus)
	}
	if refunds.calls != 1 {
		t.Errorf("refund calls = %d, want 1", refunds.calls)
	}
	events := store.eventTypes()
	if len(events) != 1 || events[0] != outbox.EventBookingCancelled {
		t.Errorf("events = %v, want [%s]", events, outbox.EventBookingCancelled)
	}
}

func TestTransition_CompleteRequiresInProgress(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	clock := &fixedClock{now: b.StartAt()}
	l := newTestLifecycle(store, clock, nil)

	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusCompleted,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete from booked: got %v, want ErrInvalidTransition", err)
	}

	if _, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusInProgress, OTP: "4321",
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("complete from in_progress: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestTransition_TerminalStatesImmutable(t *testing.T) {
	for _, terminal := range []model.Status{
		model.StatusCompleted, model.StatusCancelled, model.StatusNoShow, model.StatusExpired,
	} {
		store := newMemStore()
		b := seedBooking(store)
		b.Status = terminal
		store.addBooking(b)
		l := newTestLifecycle(store, &fixedClock{now: b.StartAt()}, nil)

		for _, target := range []model.Status{
			model.StatusBooked, model.StatusInProgress, model.StatusCompleted,
			model.StatusCancelled, model.StatusNoShow,
		} {
			_, err := l.Transition(context.Background(), TransitionRequest{
				BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
				Target: target, OTP: "4321",
			})
			if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrValidation) {
				t.Errorf("from %s to %s: got %v, want rejection", terminal, target, err)
			}
		}
	}
}

func TestTransition_WrongActorRejected(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	l := newTestLifecycle(store, &fixedClock{now: b.StartAt()}, nil)

	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: uuid.New(), ActorRole: auth.RoleCustomer,
		Target: model.StatusCancelled,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger cancel: got %v, want ErrUnauthorized", err)
	}
}

func TestTransition_UnknownBooking(t *testing.T) {
	l := newTestLifecycle(newMemStore(), &fixedClock{now: testDate}, nil)
	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: uuid.New(), ActorID: uuid.New(), ActorRole: auth.RoleAdmin,
		Target: model.StatusCancelled,
	})
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("got %v, want ErrBookingNotFound", err)
	}
}

func TestTransition_ExpiredDefensively(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	// 16 hours past the scheduled end: beyond the 15h buffer.
	l := newTestLifecycle(store, &fixedClock{now: b.EndAt().Add(16 * time.Hour)}, nil)

	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusInProgress, OTP: "4321",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if got := store.booking(b.ID); got.Status != model.StatusExpired {
		t.Fatalf("stale booked row should flip to expired, got %s", got.Status)
	}
}

func TestTransition_ExpiredCannotBeRequested(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store)
	l := newTestLifecycle(store, &fixedClock{now: b.StartAt()}, nil)

	_, err := l.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: b.ProviderID, ActorRole: auth.RoleProvider,
		Target: model.StatusExpired,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestSweeper_ExpiresOverdueBookings(t *testing.T) {
	store := newMemStore()
	overdue := seedBooking(store)
	fresh := seedBooking(store)

	// Overdue ended >15h ago; fresh is later the same week.
	now := overdue.EndAt().Add(16 * time.Hour)
	fresh.Date = model.DateOnly(now.AddDate(0, 0, 2))
	store.addBooking(fresh)

	s := NewSweeper(store, &fixedClock{now: now}, DefaultPolicy(), quietLogger())
	s.SweepOnce(context.Background())

	if got := store.booking(overdue.ID); got.Status != model.StatusExpired {
		t.Fatalf("overdue booking = %s, want expired", got.Status)
	}
	if got := store.booking(fresh.ID); got.Status != model.StatusBooked {
		t.Fatalf("future booking = %s, want still booked", got.Status)
	}
}
