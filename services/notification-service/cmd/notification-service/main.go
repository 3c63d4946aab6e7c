package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/servihub/servihub/libs/config"
	"github.com/servihub/servihub/libs/db"
	"github.com/servihub/servihub/libs/httpx"
	"github.com/servihub/servihub/libs/kafkax"
	otelx "github.com/servihub/servihub/libs/otel"
	"github.com/servihub/servihub/libs/runtime"
	"github.com/servihub/servihub/services/notification-service/internal/consumer"
	"github.com/servihub/servihub/services/notification-service/internal/email"
	"github.com/servihub/servihub/services/notification-service/internal/inbox"
	"github.com/servihub/servihub/services/notification-service/internal/notify"
	"github.com/servihub/servihub/services/notification-service/internal/sms"
	"github.com/servihub/servihub/services/notification-service/internal/storage"
	"github.com/servihub/servihub/services/notification-service/migrations"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool, migrations.Files); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	var emailSender email.Sender = email.NoopSender{}
	if host := config.String("SMTP_HOST", ""); host != "" {
		emailSender = email.NewSMTPSender(host,
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@servihub.local"))
	} else {
		logger.Warn("SMTP_HOST unset; email notifications disabled")
	}

	var smsSender sms.Sender = sms.NewNoopSender()
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		smsSender = sms.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	}

	repo := storage.NewRepository(pool)
	notifier := notify.New(repo, emailSender, smsSender, logger)

	topics := strings.Split(config.String("KAFKA_CONSUME_TOPICS",
		"booking.confirmed.v1,booking.cancelled.v1,booking.completed.v1,booking.no_show.v1,booking.expired.v1"), ",")
	for i := range topics {
		topics[i] = strings.TrimSpace(topics[i])
	}

	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  topics,
	}, func(ctx context.Context, msg kafka.Message) error {
		return notifier.Handle(ctx, msg.Topic, msg.Value)
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
