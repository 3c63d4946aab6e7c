// Package storage is the Postgres implementation of the booking core's
// persistence: the ledger, the schedule, the exceptions and the slot cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/servihub/servihub/libs/db"
	"github.com/servihub/servihub/services/booking-service/internal/booking"
	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/outbox"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

const (
	// SQLSTATE codes the core branches on.
	codeExclusionViolation = "23P01"
	codeLockNotAvailable   = "55P03"
)

// Store opens transactions against the booking schema.
type Store struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (booking.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

// LockProvider takes the transaction-scoped advisory lock serializing
// admissions for one provider. The wait is bounded by lock_timeout; SET
// LOCAL keeps the bound from leaking outside this transaction.
func (t *pgTx) LockProvider(ctx context.Context, providerID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, providerLockKey(providerID)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
			return booking.ErrLockTimeout
		}
		return fmt.Errorf("acquire provider lock: %w", err)
	}
	return nil
}

// providerLockKey hashes the provider id into the advisory lock keyspace.
// A collision between two providers only over-serializes, never under.
func providerLockKey(providerID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(providerID.String()))
	return int64(h.Sum64())
}

func (t *pgTx) Provider(ctx context.Context, providerID uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	err := t.tx.QueryRow(ctx, `
		SELECT id, display_name, service_id, price_cents, duration_minutes, active
		FROM providers WHERE id = $1`, providerID,
	).Scan(&p.ID, &p.DisplayName, &p.ServiceID, &p.PriceCents, &p.DurationMinutes, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	return &p, nil
}

func (t *pgTx) HasOverlap(ctx context.Context, providerID uuid.UUID, date time.Time, iv timeutil.Interval) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE provider_id = $1
			  AND date = $2
			  AND status IN ('booked', 'in_progress')
			  AND start_minute < $4
			  AND end_minute > $3
		)`, providerID, date, iv.Start, iv.End,
	).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (
			id, provider_id, customer_id, service_id, date,
			start_minute, end_minute, status, address,
			price_cents, payment_method, payment_status, otp,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.ProviderID, b.CustomerID, b.ServiceID, b.Date,
		b.StartMinute, b.EndMinute, b.Status, b.Address,
		b.PriceCents, b.PaymentMethod, b.PaymentStatus, b.OTP,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// The exclusion constraint is the backstop behind the advisory
		// lock; hitting it is still a plain slot conflict to callers.
		if errors.As(err, &pgErr) && pgErr.Code == codeExclusionViolation {
			return booking.ErrSlotConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

const bookingColumns = `
	id, provider_id, customer_id, service_id, date,
	start_minute, end_minute, status, address,
	price_cents, payment_method, payment_status, COALESCE(payment_ref, ''), otp,
	created_at, updated_at`

func (t *pgTx) BookingForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	return b, nil
}

func (t *pgTx) SetBookingStatus(ctx context.Context, id uuid.UUID, status model.Status, paymentStatus model.PaymentStatus) error {
	var err error
	if paymentStatus != "" {
		_, err = t.tx.Exec(ctx,
			`UPDATE bookings SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`,
			id, status, paymentStatus)
	} else {
		_, err = t.tx.Exec(ctx,
			`UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`,
			id, status)
	}
	return err
}

func (t *pgTx) SetSlotBooked(ctx context.Context, providerID uuid.UUID, date time.Time, iv timeutil.Interval, booked bool) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE availability_slots SET is_booked = $5
		WHERE provider_id = $1 AND date = $2
		  AND start_minute < $4 AND end_minute > $3`,
		providerID, date, iv.Start, iv.End, booked)
	return err
}

func (t *pgTx) AppendEvent(ctx context.Context, eventType string, payload any) error {
	return outbox.Insert(ctx, t.tx, eventType, payload)
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.ProviderID, &b.CustomerID, &b.ServiceID, &b.Date,
		&b.StartMinute, &b.EndMinute, &b.Status, &b.Address,
		&b.PriceCents, &b.PaymentMethod, &b.PaymentStatus, &b.PaymentRef, &b.OTP,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Date = model.DateOnly(b.Date)
	return &b, nil
}

// ListBookings returns a customer's or provider's bookings, newest service
// date first.
func (s *Store) ListBookings(ctx context.Context, column string, actorID uuid.UUID, limit int) ([]*model.Booking, error) {
	if column != "customer_id" && column != "provider_id" {
		return nil, fmt.Errorf("unsupported list column %q", column)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE `+column+` = $1
		ORDER BY date DESC, start_minute DESC
		LIMIT $2`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ExpireOverdue flips booked rows whose scheduled end passed the buffer to
// expired, appending the expiry event for each inside the same transaction.
func (s *Store) ExpireOverdue(ctx context.Context, asOf time.Time, buffer time.Duration, limit int) ([]*model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE bookings SET status = 'expired', updated_at = now()
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'booked'
			  AND date + make_interval(mins => end_minute) + $2 < $1
			ORDER BY date
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+bookingColumns,
		asOf, buffer, limit)
	if err != nil {
		return nil, fmt.Errorf("expire overdue bookings: %w", err)
	}
	var expired []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired booking: %w", err)
		}
		expired = append(expired, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, b := range expired {
		if err := outbox.Insert(ctx, tx, outbox.EventBookingExpired, outbox.BookingPayload(b)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return expired, nil
}
