// Package outbox implements the transactional outbox: domain events are
// written in the same transaction as the state change they describe and
// relayed to Kafka by a background publisher.
package outbox

import (
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/model"
)

// Event types double as Kafka topics.
const (
	EventBookingConfirmed = "booking.confirmed.v1"
	EventBookingCancelled = "booking.cancelled.v1"
	EventBookingCompleted = "booking.completed.v1"
	EventBookingNoShow    = "booking.no_show.v1"
	EventBookingExpired   = "booking.expired.v1"
)

type Event struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// bookingEvent is the wire payload shared by every booking event type.
type bookingEvent struct {
	BookingID   string `json:"booking_id"`
	ProviderID  string `json:"provider_id"`
	CustomerID  string `json:"customer_id"`
	ServiceID   string `json:"service_id"`
	Date        string `json:"date"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Status      string `json:"status"`
	PriceCents  int64  `json:"price_cents"`
}

// BookingPayload shapes a ledger row into the event payload. The OTP never
// leaves the ledger.
func BookingPayload(b *model.Booking) any {
	return bookingEvent{
		BookingID:   b.ID.String(),
		ProviderID:  b.ProviderID.String(),
		CustomerID:  b.CustomerID.String(),
		ServiceID:   b.ServiceID.String(),
		Date:        b.Date.Format("2006-01-02"),
		StartMinute: b.StartMinute,
		EndMinute:   b.EndMinute,
		Status:      string(b.Status),
		PriceCents:  b.PriceCents,
	}
}
