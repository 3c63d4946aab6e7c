package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

// memStore mirrors the Postgres store's contract in memory: LockProvider
// holds a per-provider mutex until the transaction ends, reads see committed
// state only, and writes stage until Commit.
type memStore struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*model.Provider
	bookings  map[uuid.UUID]*model.Booking
	events    []memEvent

	lockMu    sync.Mutex
	provLocks map[uuid.UUID]*sync.Mutex
}

type memEvent struct {
	EventType string
	Payload   any
}

func newMemStore() *memStore {
	return &memStore{
		providers: map[uuid.UUID]*model.Provider{},
		bookings:  map[uuid.UUID]*model.Booking{},
		provLocks: map[uuid.UUID]*sync.Mutex{},
	}
}

func (s *memStore) addProvider(p *model.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *memStore) addBooking(b *model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[b.ID] = &cp
}

func (s *memStore) booking(id uuid.UUID) *model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		cp := *b
		return &cp
	}
	return nil
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

func (s *memStore) providerLock(id uuid.UUID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.provLocks[id] == nil {
		s.provLocks[id] = &sync.Mutex{}
	}
	return s.provLocks[id]
}

func (s *memStore) Begin(context.Context) (Tx, error) {
	return &memTx{s: s}, nil
}

type memTx struct {
	s      *memStore
	held   []*sync.Mutex
	staged []func()
	done   bool
}

func (t *memTx) LockProvider(_ context.Context, providerID uuid.UUID) error {
	mu := t.s.providerLock(providerID)
	mu.Lock()
	t.held = append(t.held, mu)
	return nil
}

func (t *memTx) Provider(_ context.Context, providerID uuid.UUID) (*model.Provider, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.providers[providerID]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) HasOverlap(_ context.Context, providerID uuid.UUID, date time.Time, iv timeutil.Interval) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.s.bookings {
		if b.ProviderID == providerID && b.Date.Equal(date) && b.Status.Occupying() && timeutil.Overlaps(b.Interval(), iv) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	cp := *b
	t.staged = append(t.staged, func() {
		t.s.bookings[cp.ID] = &cp
	})
	return nil
}

func (t *memTx) BookingForUpdate(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) SetBookingStatus(_ context.Context, id uuid.UUID, status model.Status, paymentStatus model.PaymentStatus) error {
	t.staged = append(t.staged, func() {
		if b, ok := t.s.bookings[id]; ok {
			b.Status = status
			if paymentStatus != "" {
				b.PaymentStatus = paymentStatus
			}
		}
	})
	return nil
}

func (t *memTx) SetSlotBooked(context.Context, uuid.UUID, time.Time, timeutil.Interval, bool) error {
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, eventType string, payload any) error {
	t.staged = append(t.staged, func() {
		t.s.events = append(t.s.events, memEvent{EventType: eventType, Payload: payload})
	})
	return nil
}

func (t *memTx) Commit(context.Context) error {
	t.s.mu.Lock()
	for _, apply := range t.staged {
		apply()
	}
	t.s.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if !t.done {
		t.finish()
	}
	return nil
}

func (t *memTx) finish() {
	t.done = true
	t.staged = nil
	for _, mu := range t.held {
		mu.Unlock()
	}
	t.held = nil
}

// ExpireOverdue mirrors the Postgres sweep for Sweeper tests.
func (s *memStore) ExpireOverdue(_ context.Context, asOf time.Time, buffer time.Duration, limit int) ([]*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*model.Booking
	for _, b := range s.bookings {
		if len(expired) >= limit {
			break
		}
		if b.Status == model.StatusBooked && asOf.After(b.EndAt().Add(buffer)) {
			b.Status = model.StatusExpired
			cp := *b
			expired = append(expired, &cp)
			s.events = append(s.events, memEvent{EventType: "booking.expired.v1", Payload: nil})
		}
	}
	return expired, nil
}

// fixedClock pins "now" for deterministic guard tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
