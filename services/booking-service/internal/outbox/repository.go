package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	otelx "github.com/servihub/servihub/libs/otel"
)

// Queryable is satisfied by both pgxpool.Pool and pgx.Tx so events can be
// inserted inside the caller's transaction.
type Queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Insert records an event for later publication. The current trace context
// rides along so the consumer side continues the same trace.
func Insert(ctx context.Context, q Queryable, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = q.Exec(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, traceparent, tracestate, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.New(), eventType, body, traceparent, tracestate,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", eventType, err)
	}
	return nil
}

// FetchUnpublished claims up to limit pending events. SKIP LOCKED lets
// multiple publisher instances drain the table without stepping on each
// other.
func FetchUnpublished(ctx context.Context, q Queryable, limit int) ([]Event, error) {
	rows, err := q.Query(ctx, `
		SELECT id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Traceparent, &e.Tracestate, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func MarkPublished(ctx context.Context, q Queryable, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE outbox_events SET published_at = now()
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}
