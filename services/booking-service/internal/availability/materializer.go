// Package availability expands a provider's weekly schedule and date
// exceptions into concrete free intervals, subtracting booked time.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

// MaxHorizonDays bounds every window request.
const MaxHorizonDays = 30

// Source supplies the three inputs of materialization. The slot cache is
// deliberately absent: the window is always re-derived from schedule,
// exceptions and ledger.
type Source interface {
	RulesForProvider(ctx context.Context, providerID uuid.UUID) ([]model.ScheduleRule, error)
	ExceptionsInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]model.DateException, error)
	BookedIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) (map[time.Time][]timeutil.Interval, error)
}

type Materializer struct {
	src Source
	// ChunkMinutes > 0 re-chunks free time into fixed bookable units,
	// dropping remainders. 0 emits raw intervals.
	chunkMinutes int
}

func NewMaterializer(src Source, chunkMinutes int) *Materializer {
	return &Materializer{src: src, chunkMinutes: chunkMinutes}
}

// Window answers "what is free for this provider from `from` for `days`
// days". Every day in the horizon appears in the result, empty days
// included. Days beyond MaxHorizonDays are clamped off. Filtering slots
// already started "today" is the caller's concern; the window itself is a
// pure function of its stored inputs.
func (m *Materializer) Window(ctx context.Context, providerID uuid.UUID, from time.Time, days int) ([]model.DayAvailability, error) {
	if days <= 0 {
		days = 1
	}
	if days > MaxHorizonDays {
		days = MaxHorizonDays
	}
	start := model.DateOnly(from)
	end := start.AddDate(0, 0, days) // exclusive

	rules, err := m.src.RulesForProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load schedule rules: %w", err)
	}
	exceptions, err := m.src.ExceptionsInRange(ctx, providerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load date exceptions: %w", err)
	}
	booked, err := m.src.BookedIntervals(ctx, providerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	byWeekday := rulesByWeekday(rules)
	byDate := make(map[time.Time]*model.DateException, len(exceptions))
	for i := range exceptions {
		byDate[model.DateOnly(exceptions[i].Date)] = &exceptions[i]
	}

	out := make([]model.DayAvailability, 0, days)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		free := FreeForDay(byWeekday[d.Weekday()], byDate[d], booked[d], m.chunkMinutes)
		out = append(out, model.DayAvailability{Date: d, Free: free})
	}
	return out, nil
}

// FreeForDay computes one day's free intervals: a blocking exception wins
// over everything, an available exception's override slots replace the
// weekly windows, otherwise the weekly windows apply; booked intervals are
// then subtracted and the result optionally chunked. The result is never
// nil so empty days encode as [] rather than null.
func FreeForDay(dayRules []timeutil.Interval, exc *model.DateException, booked []timeutil.Interval, chunkMinutes int) []timeutil.Interval {
	var base []timeutil.Interval
	switch {
	case exc != nil && !exc.Available:
		base = nil
	case exc != nil && len(exc.OverrideSlots) > 0:
		base = exc.OverrideSlots
	default:
		base = dayRules
	}

	free := timeutil.Subtract(base, booked)
	if chunkMinutes > 0 {
		chunked := make([]timeutil.Interval, 0, len(free))
		for _, iv := range free {
			chunked = append(chunked, timeutil.Chunk(iv, chunkMinutes)...)
		}
		free = chunked
	}
	if free == nil {
		free = []timeutil.Interval{}
	}
	return free
}

func rulesByWeekday(rules []model.ScheduleRule) map[time.Weekday][]timeutil.Interval {
	out := make(map[time.Weekday][]timeutil.Interval)
	for _, r := range rules {
		iv := r.Interval()
		if iv.Valid() {
			out[r.Weekday] = append(out[r.Weekday], iv)
		}
	}
	return out
}

// FilterStarted drops intervals whose start has already passed for the day
// containing now. Other days pass through untouched. Applied by the HTTP
// layer on "today".
func FilterStarted(day model.DayAvailability, now time.Time) model.DayAvailability {
	if !model.DateOnly(now).Equal(day.Date) {
		return day
	}
	minuteOfDay := now.Hour()*60 + now.Minute()
	kept := make([]timeutil.Interval, 0, len(day.Free))
	for _, iv := range day.Free {
		if iv.Start > minuteOfDay {
			kept = append(kept, iv)
		}
	}
	day.Free = kept
	return day
}
