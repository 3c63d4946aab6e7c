package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/servihub/servihub/libs/auth"
	"github.com/servihub/servihub/libs/config"
	"github.com/servihub/servihub/libs/db"
	"github.com/servihub/servihub/libs/httpx"
	"github.com/servihub/servihub/libs/kafkax"
	otelx "github.com/servihub/servihub/libs/otel"
	"github.com/servihub/servihub/libs/runtime"
	"github.com/servihub/servihub/services/booking-service/internal/availability"
	"github.com/servihub/servihub/services/booking-service/internal/booking"
	"github.com/servihub/servihub/services/booking-service/internal/handlers"
	"github.com/servihub/servihub/services/booking-service/internal/outbox"
	"github.com/servihub/servihub/services/booking-service/internal/payments"
	"github.com/servihub/servihub/services/booking-service/internal/storage"
	"github.com/servihub/servihub/services/booking-service/migrations"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	applied, err := db.Migrate(ctx, pool, migrations.Files)
	if err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}
	if applied > 0 {
		logger.Info("migrations applied", "count", applied)
	}

	policy, err := policyFromEnv()
	if err != nil {
		logger.Error("invalid policy configuration", "err", err)
		panic(err)
	}
	chunkMinutes, err := config.Int("SLOT_CHUNK_MINUTES", 0)
	if err != nil {
		panic(err)
	}

	store := storage.New(pool)
	clock := booking.SystemClock()

	var refunder booking.Refunder = payments.NoopRefunder{}
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		refunder = payments.NewStripeRefunder(key, payments.DefaultRefundPolicy(), logger)
	}

	admitter := booking.NewAdmitter(store, clock, logger)
	lifecycle := booking.NewLifecycle(store, clock, policy, refunder, logger)
	windows := availability.NewMaterializer(store, chunkMinutes)

	sweeper := booking.NewSweeper(store, clock, policy, logger)
	go sweeper.Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		publisher := outbox.NewPublisher(pool, brokers, logger)
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS unset; outbox events will not be relayed")
	}

	handler := handlers.New(admitter, lifecycle, windows, store, clock, chunkMinutes, logger)

	verifier, err := verifierFromEnv()
	if err != nil {
		logger.Error("auth configuration failed", "err", err)
		panic(err)
	}
	requireAuth := auth.RequireAuth(verifier)

	publicLimit := publicRateLimit(logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.Handle("/api/v1/public/availability", publicLimit(http.HandlerFunc(handler.GetAvailability)))
	mux.Handle("/api/v1/bookings", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handler.ListBookings(w, r)
			return
		}
		handler.CreateBooking(w, r)
	})))
	mux.Handle("/api/v1/bookings/status", requireAuth(http.HandlerFunc(handler.UpdateBookingStatus)))
	mux.Handle("/api/v1/providers/schedule", requireAuth(http.HandlerFunc(handler.SetSchedule)))
	mux.Handle("/api/v1/providers/exceptions", requireAuth(http.HandlerFunc(handler.SetException)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecovery(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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

func policyFromEnv() (booking.Policy, error) {
	defaults := booking.DefaultPolicy()
	grace, err := config.Minutes("BOOKING_NOSHOW_GRACE_MIN", defaults.NoShowGrace)
	if err != nil {
		return booking.Policy{}, err
	}
	lead, err := config.Minutes("BOOKING_PROVIDER_CANCEL_LEAD_MIN", defaults.ProviderCancelLead)
	if err != nil {
		return booking.Policy{}, err
	}
	buffer, err := config.Minutes("BOOKING_EXPIRY_BUFFER_MIN", defaults.ExpiryBuffer)
	if err != nil {
		return booking.Policy{}, err
	}
	return booking.Policy{NoShowGrace: grace, ProviderCancelLead: lead, ExpiryBuffer: buffer}, nil
}

func verifierFromEnv() (auth.Verifier, error) {
	if url := config.String("JWKS_URL", ""); url != "" {
		return auth.RS256Verifier{Keys: auth.NewJWKSClient(url, 10*time.Minute)}, nil
	}
	secret, err := config.RequiredString("JWT_HS256_SECRET")
	if err != nil {
		return nil, err
	}
	return auth.HS256Verifier{Secret: secret}, nil
}

// publicRateLimit guards the unauthenticated availability endpoint. With
// Redis configured the counter is shared across replicas; otherwise a
// per-process window still caps abusive scans.
func publicRateLimit(logger *slog.Logger) httpx.Middleware {
	limit, err := config.Int("PUBLIC_RATE_LIMIT", 120)
	if err != nil || limit <= 0 {
		limit = 120
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "rl:availability").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}
