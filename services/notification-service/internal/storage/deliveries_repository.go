package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/servihub/servihub/libs/db"
)

// Delivery is one attempted notification, recorded whether or not the
// channel accepted it.
type Delivery struct {
	BookingID string
	EventType string
	Channel   string
	Recipient string
	Subject   string
	Body      string
	Status    string // sent | failed | skipped
	Reason    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries
			(booking_id, event_type, channel, recipient, subject, body, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.BookingID, d.EventType, d.Channel, d.Recipient, d.Subject, d.Body, d.Status, d.Reason)
	return err
}

// Contact is the notification address book row for one platform user.
type Contact struct {
	UserID string
	Email  string
	Phone  string
}

// ContactByUserID returns the stored contact, or ok=false when the user has
// no address on file.
func (r *Repository) ContactByUserID(ctx context.Context, userID string) (Contact, bool, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, COALESCE(email, ''), COALESCE(phone, '')
		FROM contacts WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, false, nil
		}
		return Contact{}, false, err
	}
	return c, true, nil
}
