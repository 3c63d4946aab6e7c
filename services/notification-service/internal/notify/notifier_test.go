package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/servihub/servihub/services/notification-service/internal/storage"
)

type memStore struct {
	contacts   map[string]storage.Contact
	deliveries []storage.Delivery
	insertErr  error
}

func (s *memStore) Insert(_ context.Context, d storage.Delivery) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *memStore) ContactByUserID(_ context.Context, userID string) (storage.Contact, bool, error) {
	c, ok := s.contacts[userID]
	return c, ok, nil
}

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) Send(to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeSMS struct {
	sent []string
}

func (f *fakeSMS) Send(_ context.Context, to, _ string) error {
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeSMS) ProviderID() string { return "fake" }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventJSON(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(BookingEvent{
		BookingID:   "b-1",
		ProviderID:  "p-1",
		CustomerID:  "c-1",
		Date:        "2026-09-07",
		StartMinute: 600,
		EndMinute:   660,
		Status:      "booked",
		PriceCents:  150000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestRender_KnownEventTypes(t *testing.T) {
	ev := BookingEvent{Date: "2026-09-07", StartMinute: 600, PriceCents: 150050}
	for _, eventType := range []string{
		"booking.confirmed.v1",
		"booking.cancelled.v1",
		"booking.completed.v1",
		"booking.no_show.v1",
		"booking.expired.v1",
	} {
		msg, ok := Render(eventType, ev)
		if !ok {
			t.Fatalf("no template for %s", eventType)
		}
		if msg.Subject == "" || msg.Body == "" {
			t.Fatalf("empty message for %s", eventType)
		}
		if !strings.Contains(msg.Body, "2026-09-07 at 10:00") {
			t.Fatalf("%s body missing schedule: %q", eventType, msg.Body)
		}
	}
	if _, ok := Render("billing.invoice.v1", ev); ok {
		t.Fatal("unexpected template for foreign event type")
	}
}

func TestRender_ConfirmedIncludesPrice(t *testing.T) {
	msg, _ := Render("booking.confirmed.v1", BookingEvent{Date: "2026-09-07", StartMinute: 540, PriceCents: 150050})
	if !strings.Contains(msg.Body, "BDT 1500.50") {
		t.Fatalf("body = %q, want price", msg.Body)
	}
}

func TestHandle_SendsOnBothChannels(t *testing.T) {
	store := &memStore{contacts: map[string]storage.Contact{
		"c-1": {UserID: "c-1", Email: "x@example.com", Phone: "+8801700000000"},
	}}
	mail := &fakeEmail{}
	texts := &fakeSMS{}
	n := New(store, mail, texts, quiet())

	if err := n.Handle(context.Background(), "booking.confirmed.v1", eventJSON(t)); err != nil {
		t.Fatal(err)
	}
	if len(mail.sent) != 1 || mail.sent[0] != "x@example.com" {
		t.Fatalf("email sent = %v", mail.sent)
	}
	if len(texts.sent) != 1 || texts.sent[0] != "+8801700000000" {
		t.Fatalf("sms sent = %v", texts.sent)
	}
	if len(store.deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(store.deliveries))
	}
	for _, d := range store.deliveries {
		if d.Status != "sent" {
			t.Fatalf("delivery status = %s", d.Status)
		}
	}
}

func TestHandle_NoContactIsSkippedNotRetried(t *testing.T) {
	store := &memStore{contacts: map[string]storage.Contact{}}
	n := New(store, &fakeEmail{}, &fakeSMS{}, quiet())

	if err := n.Handle(context.Background(), "booking.confirmed.v1", eventJSON(t)); err != nil {
		t.Fatal(err)
	}
	if len(store.deliveries) != 1 || store.deliveries[0].Status != "skipped" {
		t.Fatalf("deliveries = %+v, want one skipped", store.deliveries)
	}
}

func TestHandle_SendFailureIsLoggedNotRetried(t *testing.T) {
	store := &memStore{contacts: map[string]storage.Contact{
		"c-1": {UserID: "c-1", Email: "x@example.com"},
	}}
	mail := &fakeEmail{err: errors.New("smtp down")}
	n := New(store, mail, &fakeSMS{}, quiet())

	if err := n.Handle(context.Background(), "booking.confirmed.v1", eventJSON(t)); err != nil {
		t.Fatal(err)
	}
	if len(store.deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(store.deliveries))
	}
	if store.deliveries[0].Status != "failed" || store.deliveries[0].Reason == "" {
		t.Fatalf("delivery = %+v, want failed with reason", store.deliveries[0])
	}
}

func TestHandle_InfrastructureFailurePropagates(t *testing.T) {
	store := &memStore{
		contacts:  map[string]storage.Contact{"c-1": {UserID: "c-1", Email: "x@example.com"}},
		insertErr: errors.New("db down"),
	}
	n := New(store, &fakeEmail{}, &fakeSMS{}, quiet())

	if err := n.Handle(context.Background(), "booking.confirmed.v1", eventJSON(t)); err == nil {
		t.Fatal("want error so the consumer retries")
	}
}

func TestHandle_MalformedPayloadDropped(t *testing.T) {
	store := &memStore{}
	n := New(store, &fakeEmail{}, &fakeSMS{}, quiet())
	if err := n.Handle(context.Background(), "booking.confirmed.v1", []byte("{nope")); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
	if len(store.deliveries) != 0 {
		t.Fatalf("deliveries = %d, want 0", len(store.deliveries))
	}
}
