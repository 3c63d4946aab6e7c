// Package notify turns booking lifecycle events into customer-facing
// messages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/servihub/servihub/services/notification-service/internal/email"
	"github.com/servihub/servihub/services/notification-service/internal/sms"
	"github.com/servihub/servihub/services/notification-service/internal/storage"
)

// BookingEvent mirrors the payload the booking service publishes.
type BookingEvent struct {
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

func (e BookingEvent) startClock() string {
	return fmt.Sprintf("%02d:%02d", e.StartMinute/60, e.StartMinute%60)
}

// Message is the rendered notification before channel dispatch.
type Message struct {
	Subject string
	Body    string
}

// Render maps an event type onto customer copy. Unknown event types return
// ok=false and are skipped rather than failed.
func Render(eventType string, ev BookingEvent) (Message, bool) {
	when := fmt.Sprintf("%s at %s", ev.Date, ev.startClock())
	switch eventType {
	case "booking.confirmed.v1":
		return Message{
			Subject: "Booking confirmed",
			Body:    fmt.Sprintf("Your booking on %s is confirmed. Share the OTP from your app with the provider at the door. Amount due: BDT %d.%02d.", when, ev.PriceCents/100, ev.PriceCents%100),
		}, true
	case "booking.cancelled.v1":
		return Message{
			Subject: "Booking cancelled",
			Body:    fmt.Sprintf("Your booking on %s was cancelled. Any payment will be refunded per the cancellation policy.", when),
		}, true
	case "booking.completed.v1":
		return Message{
			Subject: "Service completed",
			Body:    fmt.Sprintf("Your booking on %s is complete. Thank you for using ServiHub.", when),
		}, true
	case "booking.no_show.v1":
		return Message{
			Subject: "Missed appointment",
			Body:    fmt.Sprintf("The provider reported a no-show for your booking on %s. Contact support if this is incorrect.", when),
		}, true
	case "booking.expired.v1":
		return Message{
			Subject: "Booking expired",
			Body:    fmt.Sprintf("Your booking on %s was never started and has lapsed. Please rebook if you still need the service.", when),
		}, true
	default:
		return Message{}, false
	}
}

// Store is the persistence the notifier needs: the delivery log and the
// address book.
type Store interface {
	Insert(ctx context.Context, d storage.Delivery) error
	ContactByUserID(ctx context.Context, userID string) (storage.Contact, bool, error)
}

type Notifier struct {
	store  Store
	email  email.Sender
	sms    sms.Sender
	logger *slog.Logger
}

func New(store Store, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger) *Notifier {
	return &Notifier{store: store, email: emailSender, sms: smsSender, logger: logger}
}

// Handle processes one consumed event. Malformed payloads and unknown event
// types are logged and dropped; only infrastructure failures propagate so
// the consumer retries them.
func (n *Notifier) Handle(ctx context.Context, eventType string, raw []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		n.logger.Error("malformed booking event", "event_type", eventType, "err", err)
		return nil
	}
	if ev.BookingID == "" || ev.CustomerID == "" {
		n.logger.Error("booking event missing identifiers", "event_type", eventType)
		return nil
	}

	msg, ok := Render(eventType, ev)
	if !ok {
		n.logger.Info("no template for event", "event_type", eventType)
		return nil
	}

	contact, found, err := n.store.ContactByUserID(ctx, ev.CustomerID)
	if err != nil {
		return fmt.Errorf("look up contact: %w", err)
	}
	if !found || (contact.Email == "" && contact.Phone == "") {
		return n.store.Insert(ctx, storage.Delivery{
			BookingID: ev.BookingID,
			EventType: eventType,
			Channel:   "none",
			Status:    "skipped",
			Reason:    "no contact on file",
		})
	}

	if contact.Email != "" {
		d := storage.Delivery{
			BookingID: ev.BookingID,
			EventType: eventType,
			Channel:   "email",
			Recipient: contact.Email,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Status:    "sent",
		}
		if err := n.email.Send(contact.Email, msg.Subject, msg.Body); err != nil {
			d.Status = "failed"
			d.Reason = err.Error()
			n.logger.Error("email send failed", "err", err, "booking_id", ev.BookingID)
		}
		if err := n.store.Insert(ctx, d); err != nil {
			return fmt.Errorf("record delivery: %w", err)
		}
	}

	if contact.Phone != "" {
		d := storage.Delivery{
			BookingID: ev.BookingID,
			EventType: eventType,
			Channel:   "sms",
			Recipient: contact.Phone,
			Body:      msg.Body,
			Status:    "sent",
		}
		if err := n.sms.Send(ctx, contact.Phone, msg.Body); err != nil {
			d.Status = "failed"
			d.Reason = err.Error()
			n.logger.Error("sms send failed", "err", err, "booking_id", ev.BookingID)
		}
		if err := n.store.Insert(ctx, d); err != nil {
			return fmt.Errorf("record delivery: %w", err)
		}
	}

	n.logger.Info("booking event processed", "event_type", eventType, "booking_id", ev.BookingID)
	return nil
}
