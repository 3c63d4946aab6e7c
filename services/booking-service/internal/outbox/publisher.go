package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/servihub/servihub/libs/db"
	"github.com/servihub/servihub/libs/kafkax"
	otelx "github.com/servihub/servihub/libs/otel"
)

// Publisher relays committed outbox rows to Kafka on a ticker. Each event's
// topic is its event type.
type Publisher struct {
	pool     *db.Pool
	writer   *kafka.Writer
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewPublisher(pool *db.Pool, brokers string, logger *slog.Logger) *Publisher {
	return &Publisher{
		pool: pool,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(kafkax.SplitBrokers(brokers)...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		logger:   logger,
		interval: time.Second,
		batch:    100,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.writer.Close()
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox publish batch failed", "err", err)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	events, err := FetchUnpublished(ctx, tx, p.batch)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		msgCtx := otelx.ContextWithTraceContext(ctx, e.Traceparent, e.Tracestate)
		headers := []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID.String())},
			{Key: "event_type", Value: []byte(e.EventType)},
		}
		headers = kafkax.InjectTraceHeaders(msgCtx, headers)
		err := p.writer.WriteMessages(msgCtx, kafka.Message{
			Topic:   e.EventType,
			Key:     []byte(e.ID.String()),
			Value:   e.Payload,
			Headers: headers,
		})
		if err != nil {
			// Stop the batch; unpublished rows stay claimed only until
			// rollback and are retried next tick.
			p.logger.Warn("kafka write failed", "event_id", e.ID, "event_type", e.EventType, "err", err)
			break
		}
		published = append(published, e.ID)
	}
	if len(published) == 0 {
		return nil
	}
	if err := MarkPublished(ctx, tx, published); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
