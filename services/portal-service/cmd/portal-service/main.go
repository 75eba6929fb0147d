package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/auth"
	"github.com/md-rashed-zaman/homeaudit/libs/config"
	"github.com/md-rashed-zaman/homeaudit/libs/db"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/libs/kafkax"
	otelx "github.com/md-rashed-zaman/homeaudit/libs/otel"
	"github.com/md-rashed-zaman/homeaudit/libs/runtime"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/booking"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/catalog"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/handlers"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/identity"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/inbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/notify"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/outbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/reminders"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/storage"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/migrations"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "portal-service")
	port, err := config.Port("PORT", "8080")
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

	if config.Bool("DB_MIGRATE", true) {
		if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
	}

	mailer, err := notify.NewService(newEmailSender(logger), notify.Config{
		BusinessName:  config.String("BUSINESS_NAME", "Home Security Audits"),
		PublicBaseURL: strings.TrimRight(config.String("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
	}, logger)
	if err != nil {
		panic(err)
	}

	outboxRepo := outbox.NewRepository()
	reminderRepo := reminders.NewRepository()
	customers := storage.NewCustomerRepository(pool, outboxRepo)
	appointments := storage.NewAppointmentRepository(pool, outboxRepo, reminderRepo, inbox.NewRepository())

	signer := auth.NewHS256Signer(
		mustString("ADMIN_JWT_SECRET"),
		service,
		mustDuration("ADMIN_TOKEN_TTL_HOURS", 8, time.Hour),
	)
	identitySvc := identity.NewService(customers, mailer, signer, identity.Config{
		SessionTTL: mustDuration("SESSION_TTL_HOURS", 168, time.Hour),
		ResetTTL:   mustDuration("RESET_TOKEN_TTL_MINUTES", 60, time.Minute),
	}, logger)
	if err := identitySvc.EnsureAdmin(ctx, config.String("ADMIN_USERNAME", ""), config.String("ADMIN_PASSWORD", "")); err != nil {
		logger.Error("admin bootstrap failed", "err", err)
		panic(err)
	}

	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "UTC"))
	if err != nil {
		panic(err)
	}
	orchestrator := booking.NewOrchestrator(appointments, newPaymentGateway(logger), newAgreementGateway(logger), mailer, booking.Config{
		Currency:      config.String("CURRENCY", "usd"),
		FollowupDelay: mustDuration("FOLLOWUP_REMINDER_DELAY_MINUTES", 60, time.Minute),
		Location:      loc,
	}, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	reminderWorker := reminders.NewWorker(reminders.NewQueue(pool, reminderRepo), appointments, mailer, logger, reminders.WorkerConfig{
		Interval:  mustDuration("REMINDER_POLL_SECONDS", 30, time.Second),
		BatchSize: 50,
	})
	go reminderWorker.Run(ctx)

	authLimiter, lookupLimiter, limiterCheck, closeLimiter := newLimiters(logger)
	defer closeLimiter()
	trustedProxies, err := httpx.ParseProxyTrust(config.List("TRUSTED_PROXIES"))
	if err != nil {
		panic(err)
	}

	api := handlers.NewRouter(handlers.Deps{
		Identity:               identitySvc,
		Bookings:               orchestrator,
		Catalog:                catalog.NewService(storage.NewCatalogRepository(pool), logger),
		Logger:                 logger,
		AuthLimiter:            authLimiter,
		LookupLimiter:          lookupLimiter,
		RateLimitFailOpen:      config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		TrustedProxies:         trustedProxies,
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: mustDuration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300, time.Second),
	})

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if limiterCheck != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: limiterCheck})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", api)

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(mustDuration("REQUEST_TIMEOUT_SECONDS", 30, time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "portal")
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

func mustString(key string) string {
	v, err := config.RequiredString(key)
	if err != nil {
		panic(err)
	}
	return v
}

func mustDuration(key string, fallback int, unit time.Duration) time.Duration {
	d, err := config.Duration(key, fallback, unit)
	if err != nil {
		panic(err)
	}
	return d
}
