// Package model holds the persisted entities of the booking core.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusBooked     Status = "booked"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusExpired:
		return true
	}
	return false
}

// Occupying reports whether a booking in this status blocks its interval
// for conflict detection.
func (s Status) Occupying() bool {
	return s == StatusBooked || s == StatusInProgress
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow, StatusExpired:
		return true
	}
	return false
}

// PaymentStatus tracks the external payment collaborator's view of a booking.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Booking is a ledger row. Rows are never deleted; status is the only field
// the lifecycle mutates after admission.
type Booking struct {
	ID            uuid.UUID     `json:"id"`
	ProviderID    uuid.UUID     `json:"provider_id"`
	CustomerID    uuid.UUID     `json:"customer_id"`
	ServiceID     uuid.UUID     `json:"service_id"`
	Date          time.Time     `json:"date"` // midnight UTC of the service date
	StartMinute   int           `json:"start_minute"`
	EndMinute     int           `json:"end_minute"`
	Status        Status        `json:"status"`
	Address       string        `json:"address"`
	PriceCents    int64         `json:"price_cents"`
	PaymentMethod string        `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	OTP           string        `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Interval returns the booked range in minutes since midnight.
func (b *Booking) Interval() timeutil.Interval {
	return timeutil.Interval{Start: b.StartMinute, End: b.EndMinute}
}

// StartAt returns the absolute start instant in UTC.
func (b *Booking) StartAt() time.Time {
	return b.Date.Add(time.Duration(b.StartMinute) * time.Minute)
}

// EndAt returns the absolute end instant in UTC.
func (b *Booking) EndAt() time.Time {
	return b.Date.Add(time.Duration(b.EndMinute) * time.Minute)
}

// ScheduleRule is one recurring weekly availability window.
// Weekday follows time.Weekday (Sunday = 0). Multiple rules per weekday are
// allowed; the materializer treats each as an independent free interval.
type ScheduleRule struct {
	ProviderID  uuid.UUID    `json:"provider_id"`
	Weekday     time.Weekday `json:"weekday"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
}

func (r ScheduleRule) Interval() timeutil.Interval {
	return timeutil.Interval{Start: r.StartMinute, End: r.EndMinute}
}

// DateException overrides the weekly schedule for one calendar date.
// Blocked dates have Available = false. Available dates with OverrideSlots
// replace the weekly windows entirely for that date.
type DateException struct {
	ProviderID    uuid.UUID           `json:"provider_id"`
	Date          time.Time           `json:"date"`
	Available     bool                `json:"available"`
	OverrideSlots []timeutil.Interval `json:"override_slots,omitempty"`
}

// Slot is one materialized bookable unit. Read-optimized inventory only:
// the ledger, not IsBooked, decides conflicts.
type Slot struct {
	ProviderID  uuid.UUID `json:"provider_id"`
	Date        time.Time `json:"date"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	IsBooked    bool      `json:"is_booked"`
}

// Provider is the slice of provider identity the booking core needs:
// existence, active flag, and the authoritative price for admission.
type Provider struct {
	ID              uuid.UUID `json:"id"`
	DisplayName     string    `json:"display_name"`
	ServiceID       uuid.UUID `json:"service_id"`
	PriceCents      int64     `json:"price_cents"`
	DurationMinutes int       `json:"duration_minutes"`
	Active          bool      `json:"active"`
}

// DayAvailability is one day of materialized free time.
type DayAvailability struct {
	Date time.Time           `json:"date"`
	Free []timeutil.Interval `json:"free_slots"`
}

// DateOnly normalizes t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
