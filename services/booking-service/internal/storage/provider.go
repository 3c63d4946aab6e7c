package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/servihub/servihub/services/booking-service/internal/booking"
	"github.com/servihub/servihub/services/booking-service/internal/model"
)

// ProviderByID is the non-transactional provider read used by the
// availability path. Inactive providers read as not found.
func (s *Store) ProviderByID(ctx context.Context, providerID uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, service_id, price_cents, duration_minutes, active
		FROM providers WHERE id = $1`, providerID,
	).Scan(&p.ID, &p.DisplayName, &p.ServiceID, &p.PriceCents, &p.DurationMinutes, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !p.Active {
		return nil, booking.ErrProviderNotFound
	}
	return &p, nil
}
