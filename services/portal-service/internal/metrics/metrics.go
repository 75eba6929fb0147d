package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "Latency of API requests by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	AppointmentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_appointments_created_total",
			Help: "Appointments persisted after a successful charge",
		},
		[]string{"channel"}, // "customer", "guest"
	)

	PaymentAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_payment_attempts_total",
			Help: "Charge attempts against the payment gateway",
		},
		[]string{"provider", "result"},
	)

	AgreementRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_agreement_requests_total",
			Help: "Send-for-signature calls against the agreement gateway",
		},
		[]string{"provider", "result"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notifications_total",
			Help: "Transactional emails by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	ReminderJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_reminder_jobs_processed_total",
			Help: "Durable reminder jobs processed by the worker",
		},
		[]string{"kind", "result"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_webhook_events_total",
			Help: "Provider webhook deliveries",
		},
		[]string{"provider", "outcome"}, // "processed", "duplicate", "ignored", "rejected", "failed"
	)

	CustomerLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_customer_logins_total",
			Help: "Customer login attempts",
		},
		[]string{"result"},
	)
)

func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// Middleware records request latency labelled with the chi route pattern, so
// ids in paths do not explode label cardinality. Mount it inside the router.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
