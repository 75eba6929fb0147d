package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/auth"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/booking"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/identity"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/metrics"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/payments"
)

type Identity interface {
	RegisterCustomer(ctx context.Context, reg identity.Registration, meta identity.SessionMeta) (model.Customer, string, error)
	LoginCustomer(ctx context.Context, creds identity.Credentials, meta identity.SessionMeta) (model.Customer, string, error)
	VerifyEmail(ctx context.Context, token string) (bool, error)
	GeneratePasswordResetToken(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, req identity.PasswordReset) error
	Logout(ctx context.Context, token string) error
	AdminLogin(ctx context.Context, creds identity.AdminCredentials) (string, time.Time, error)
	Resolve(ctx context.Context, token string) (identity.Identity, error)
}

type Bookings interface {
	CreateAppointment(ctx context.Context, req booking.CreateRequest, owner *string) (booking.Booking, error)
	UpdateAppointment(ctx context.Context, id string, p booking.Patch) (model.Appointment, error)
	HandleSignatureEvent(ctx context.Context, evt booking.SignatureEvent) (model.Appointment, bool, error)
	RecordPayment(ctx context.Context, req booking.PaymentRequest) (payments.Charge, error)
	ApplyPaymentStatus(ctx context.Context, evt booking.PaymentEvent) (bool, error)
	SendTomorrowReminders(ctx context.Context) (int, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, limit int) ([]model.Appointment, error)
	ListByEmail(ctx context.Context, email string) ([]model.Appointment, error)
	ListByCustomer(ctx context.Context, customerID string) ([]model.Appointment, error)
}

type Catalog interface {
	ServicePackages(ctx context.Context) ([]model.ServicePackage, error)
	Officers(ctx context.Context) ([]model.Officer, error)
}

type Deps struct {
	Identity Identity
	Bookings Bookings
	Catalog  Catalog
	Logger   *slog.Logger

	// AuthLimiter guards credential endpoints, LookupLimiter the unauthenticated
	// appointment lookup and email verification links. Nil disables the limit.
	AuthLimiter       httpx.Limiter
	LookupLimiter     httpx.Limiter
	RateLimitFailOpen bool
	// TrustedProxies may name the client in X-Forwarded-For, for rate limit
	// keys and session metadata. The zero value trusts none.
	TrustedProxies httpx.ProxyTrust

	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

type Handler struct {
	identity Identity
	bookings Bookings
	catalog  Catalog
	logger   *slog.Logger
	proxies  httpx.ProxyTrust

	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

// NewRouter mounts every /api route.
func NewRouter(d Deps) http.Handler {
	h := &Handler{
		identity:               d.Identity,
		bookings:               d.Bookings,
		catalog:                d.Catalog,
		proxies:                d.TrustedProxies,
		logger:                 d.Logger,
		stripeWebhookSecret:    d.StripeWebhookSecret,
		stripeWebhookTolerance: d.StripeWebhookTolerance,
	}
	if h.stripeWebhookTolerance <= 0 {
		h.stripeWebhookTolerance = 5 * time.Minute
	}
	authLimit := h.limit(d.AuthLimiter, d.RateLimitFailOpen)
	lookupLimit := h.limit(d.LookupLimiter, d.RateLimitFailOpen)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/service-packages", h.ServicePackages)
		r.Get("/officers", h.Officers)
		r.With(h.optionalCustomer).Post("/appointments", h.CreateAppointment)
		r.Post("/payments", h.RecordPayment)
		r.With(lookupLimit).Get("/customer/appointments", h.AppointmentsByEmail)
		r.With(lookupLimit).Get("/auth/verify-email/{token}", h.VerifyEmail)
		r.Post("/docusign/webhook", h.SignatureWebhook)
		r.Post("/payments/webhooks/stripe", h.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/auth/register", h.Register)
			r.Post("/auth/login", h.Login)
			r.Post("/auth/logout", h.Logout)
			r.Post("/auth/forgot-password", h.ForgotPassword)
			r.Post("/auth/reset-password", h.ResetPassword)
			r.Post("/admin/login", h.AdminLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.require(identity.RoleCustomer))
			r.Get("/auth/profile", h.Profile)
			r.Get("/auth/appointments", h.CustomerAppointments)
			r.Post("/auth/appointments", h.CreateAppointment)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.require(model.RoleAdmin))
			r.Get("/appointments", h.ListAppointments)
			r.Get("/appointments/{id}", h.GetAppointment)
			r.Patch("/appointments/{id}", h.UpdateAppointment)
			r.Post("/send-reminders", h.SendReminders)
		})
	})
	return r
}

func (h *Handler) limit(l httpx.Limiter, failOpen bool) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return httpx.RateLimit(l, h.proxies, h.logger, failOpen)
}

// require admits requests whose bearer token resolves to one of roles.
func (h *Handler) require(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			id, err := h.identity.Resolve(r.Context(), token)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
					return
				}
			}
			h.writeError(w, r, errForbidden)
		})
	}
}

var errForbidden = apperr.Forbidden("forbidden")

// optionalCustomer attaches the customer when a bearer token is sent. An
// invalid token is rejected rather than silently booking as a guest.
func (h *Handler) optionalCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		id, err := h.identity.Resolve(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
	})
}
