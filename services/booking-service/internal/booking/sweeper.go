package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/servihub/servihub/services/booking-service/internal/model"
)

// ExpiryStore flips overdue booked rows to expired in one batch, appending
// the expiry event for each, and returns what it expired.
type ExpiryStore interface {
	ExpireOverdue(ctx context.Context, asOf time.Time, buffer time.Duration, limit int) ([]*model.Booking, error)
}

// Sweeper is the background worker applying the passive expired transition:
// booked rows whose scheduled end passed the expiry buffer without the
// provider ever starting service.
type Sweeper struct {
	store    ExpiryStore
	clock    Clock
	policy   Policy
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewSweeper(store ExpiryStore, clock Clock, policy Policy, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		clock:    clock,
		policy:   policy,
		logger:   logger,
		interval: time.Minute,
		batch:    200,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce drains overdue rows until a batch comes back short.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	for {
		expired, err := s.store.ExpireOverdue(ctx, s.clock.Now(), s.policy.ExpiryBuffer, s.batch)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("expiry sweep failed", "err", err)
			}
			return
		}
		for _, b := range expired {
			s.logger.Info("booking expired", "booking_id", b.ID, "provider_id", b.ProviderID)
		}
		if len(expired) < s.batch {
			return
		}
	}
}
