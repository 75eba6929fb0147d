package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/config"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/agreements"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/email"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/payments"
	"github.com/redis/go-redis/v9"
)

func newEmailSender(logger *slog.Logger) email.Sender {
	switch strings.ToLower(config.String("EMAIL_PROVIDER", "noop")) {
	case "smtp":
		smtpPort, err := config.Port("SMTP_PORT", "1025")
		if err != nil {
			panic(err)
		}
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     config.String("SMTP_HOST", "localhost"),
			Port:     smtpPort,
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			From:     config.String("SMTP_FROM", "no-reply@homeaudit.local"),
		})
	default:
		return email.NewNoopSender(logger)
	}
}

func newPaymentGateway(logger *slog.Logger) payments.Gateway {
	switch strings.ToLower(config.String("PAYMENT_PROVIDER", "simulated")) {
	case "stripe":
		logger.Info("payment provider configured", "provider", "stripe")
		return payments.NewStripeGateway(mustString("STRIPE_SECRET_KEY"), config.String("CURRENCY", "usd"))
	default:
		return payments.NewSimulatedGateway(mustDuration("PAYMENT_SIMULATED_DELAY_MS", 1000, time.Millisecond))
	}
}

func newAgreementGateway(logger *slog.Logger) agreements.Gateway {
	switch strings.ToLower(config.String("AGREEMENT_PROVIDER", "simulated")) {
	case "http":
		logger.Info("agreement provider configured", "provider", "http")
		return agreements.NewHTTPGateway(agreements.HTTPConfig{
			URL:              mustString("AGREEMENT_API_URL"),
			Token:            config.String("AGREEMENT_API_TOKEN", ""),
			Timeout:          mustDuration("AGREEMENT_TIMEOUT_SECONDS", 10, time.Second),
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		}, logger)
	default:
		return agreements.NewSimulatedGateway(
			mustDuration("AGREEMENT_SIMULATED_DELAY_MS", 1000, time.Millisecond),
			strings.TrimRight(config.String("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		)
	}
}

// newLimiters returns the auth and lookup limiters, backed by Redis when
// REDIS_ADDR is set and by process memory otherwise.
func newLimiters(logger *slog.Logger) (auth, lookup httpx.Limiter, ready func(context.Context) error, closeFn func()) {
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		panic(err)
	}
	lookupPerMinute, err := config.Int("LOOKUP_RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		panic(err)
	}

	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		return httpx.NewMemoryRateLimiter(perMinute, time.Minute),
			httpx.NewMemoryRateLimiter(lookupPerMinute, time.Minute),
			nil, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
	})
	logger.Info("rate limiting via redis", "addr", addr)
	return httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "rl:auth"),
		httpx.NewRedisRateLimiter(rdb, lookupPerMinute, time.Minute, "rl:lookup"),
		httpx.RedisReadyCheck(rdb),
		func() { _ = rdb.Close() }
}
