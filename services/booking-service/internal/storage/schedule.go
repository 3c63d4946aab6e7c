package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/availability"
	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

// SlotHorizonDays is how far ahead the materialized slot cache is generated
// on schedule changes.
const SlotHorizonDays = 30

// RulesForProvider, ExceptionsInRange and BookedIntervals make Store an
// availability.Source so the materializer reads straight from Postgres.

func (s *Store) RulesForProvider(ctx context.Context, providerID uuid.UUID) ([]model.ScheduleRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id, weekday, start_minute, end_minute
		FROM schedule_rules WHERE provider_id = $1
		ORDER BY weekday, start_minute`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load schedule rules: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduleRule
	for rows.Next() {
		var r model.ScheduleRule
		var weekday int
		if err := rows.Scan(&r.ProviderID, &weekday, &r.StartMinute, &r.EndMinute); err != nil {
			return nil, fmt.Errorf("scan schedule rule: %w", err)
		}
		r.Weekday = time.Weekday(weekday)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ExceptionsInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]model.DateException, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id, date, is_available, override_slots
		FROM date_exceptions
		WHERE provider_id = $1 AND date >= $2 AND date < $3`,
		providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load date exceptions: %w", err)
	}
	defer rows.Close()

	var out []model.DateException
	for rows.Next() {
		var e model.DateException
		var overrides []byte
		if err := rows.Scan(&e.ProviderID, &e.Date, &e.Available, &overrides); err != nil {
			return nil, fmt.Errorf("scan date exception: %w", err)
		}
		e.Date = model.DateOnly(e.Date)
		if len(overrides) > 0 {
			if err := json.Unmarshal(overrides, &e.OverrideSlots); err != nil {
				return nil, fmt.Errorf("decode override slots: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) BookedIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) (map[time.Time][]timeutil.Interval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, start_minute, end_minute
		FROM bookings
		WHERE provider_id = $1
		  AND date >= $2 AND date < $3
		  AND status IN ('booked', 'in_progress')`,
		providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}
	defer rows.Close()

	out := map[time.Time][]timeutil.Interval{}
	for rows.Next() {
		var date time.Time
		var iv timeutil.Interval
		if err := rows.Scan(&date, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan booked interval: %w", err)
		}
		date = model.DateOnly(date)
		out[date] = append(out[date], iv)
	}
	return out, rows.Err()
}

// SetProviderSchedule replaces the provider's weekly rules wholesale and
// regenerates the materialized slot cache for the rolling horizon starting
// at from. Everything happens in one transaction.
func (s *Store) SetProviderSchedule(ctx context.Context, providerID uuid.UUID, rules []model.ScheduleRule, from time.Time, chunkMinutes int) error {
	for _, r := range rules {
		if !r.Interval().Valid() {
			return fmt.Errorf("rule %s on %s: start must be before end", r.Interval(), r.Weekday)
		}
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("invalid weekday %d", r.Weekday)
		}
	}
	start := model.DateOnly(from)
	end := start.AddDate(0, 0, SlotHorizonDays)

	exceptions, err := s.ExceptionsInRange(ctx, providerID, start, end)
	if err != nil {
		return err
	}
	booked, err := s.BookedIntervals(ctx, providerID, start, end)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM schedule_rules WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear schedule rules: %w", err)
	}
	for _, r := range rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO schedule_rules (provider_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)`,
			providerID, int(r.Weekday), r.StartMinute, r.EndMinute); err != nil {
			return fmt.Errorf("insert schedule rule: %w", err)
		}
	}

	// Purge and re-expand the cache horizon.
	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_slots WHERE provider_id = $1 AND date >= $2`,
		providerID, start); err != nil {
		return fmt.Errorf("purge slot cache: %w", err)
	}

	byWeekday := map[time.Weekday][]timeutil.Interval{}
	for _, r := range rules {
		byWeekday[r.Weekday] = append(byWeekday[r.Weekday], r.Interval())
	}
	byDate := make(map[time.Time]*model.DateException, len(exceptions))
	for i := range exceptions {
		byDate[exceptions[i].Date] = &exceptions[i]
	}

	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		// The cache expands schedule intent only; booked time is flagged,
		// not removed, so cancelled bookings free their slots in place.
		units := availability.FreeForDay(byWeekday[d.Weekday()], byDate[d], nil, chunkMinutes)
		for _, u := range units {
			isBooked := overlapsAny(u, booked[d])
			if _, err := tx.Exec(ctx, `
				INSERT INTO availability_slots (provider_id, date, start_minute, end_minute, is_booked)
				VALUES ($1, $2, $3, $4, $5)`,
				providerID, d, u.Start, u.End, isBooked); err != nil {
				return fmt.Errorf("insert slot: %w", err)
			}
		}
	}
	return tx.Commit(ctx)
}

// SetDateException upserts the override for one date. The materializer
// reads exceptions at query time, so no cache regeneration is needed.
func (s *Store) SetDateException(ctx context.Context, exc model.DateException) error {
	for _, iv := range exc.OverrideSlots {
		if !iv.Valid() {
			return fmt.Errorf("override slot %s: start must be before end", iv)
		}
	}
	var overrides []byte
	if len(exc.OverrideSlots) > 0 {
		var err error
		overrides, err = json.Marshal(exc.OverrideSlots)
		if err != nil {
			return fmt.Errorf("encode override slots: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO date_exceptions (provider_id, date, is_available, override_slots)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_id, date)
		DO UPDATE SET is_available = EXCLUDED.is_available, override_slots = EXCLUDED.override_slots`,
		exc.ProviderID, model.DateOnly(exc.Date), exc.Available, overrides)
	if err != nil {
		return fmt.Errorf("upsert date exception: %w", err)
	}
	return nil
}

func overlapsAny(iv timeutil.Interval, busy []timeutil.Interval) bool {
	for _, b := range busy {
		if timeutil.Overlaps(iv, b) {
			return true
		}
	}
	return false
}
