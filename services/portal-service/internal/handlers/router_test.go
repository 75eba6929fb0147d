package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/libs/runtime"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/booking"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/identity"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/payments"
)

const (
	adminToken   = "header.payload.signature"
	stripeSecret = "whsec_test_secret"
)

type fakeIdentity struct {
	sessions map[string]model.Customer
	metas    []identity.SessionMeta
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{sessions: map[string]model.Customer{}}
}

func (f *fakeIdentity) RegisterCustomer(_ context.Context, reg identity.Registration, meta identity.SessionMeta) (model.Customer, string, error) {
	if len(reg.Password) < 8 {
		return model.Customer{}, "", apperr.Validation("password must be at least 8 characters")
	}
	f.metas = append(f.metas, meta)
	c := model.Customer{
		ID:        "c-" + reg.Email,
		Email:     reg.Email,
		FullName:  reg.FullName,
		IsActive:  true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	token := "session-" + reg.Email
	f.sessions[token] = c
	return c, token, nil
}

func (f *fakeIdentity) LoginCustomer(context.Context, identity.Credentials, identity.SessionMeta) (model.Customer, string, error) {
	return model.Customer{}, "", apperr.Auth("invalid email or password")
}

func (f *fakeIdentity) VerifyEmail(_ context.Context, token string) (bool, error) {
	return token == "good", nil
}

func (f *fakeIdentity) GeneratePasswordResetToken(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeIdentity) ResetPassword(context.Context, identity.PasswordReset) error { return nil }

func (f *fakeIdentity) Logout(_ context.Context, token string) error {
	delete(f.sessions, token)
	return nil
}

func (f *fakeIdentity) AdminLogin(context.Context, identity.AdminCredentials) (string, time.Time, error) {
	return adminToken, time.Now().Add(time.Hour), nil
}

func (f *fakeIdentity) Resolve(_ context.Context, token string) (identity.Identity, error) {
	if token == adminToken {
		return identity.Identity{Subject: "admin-1", Role: model.RoleAdmin}, nil
	}
	c, ok := f.sessions[token]
	if !ok {
		return identity.Identity{}, apperr.Auth("invalid or expired session")
	}
	return identity.Identity{Subject: c.ID, Role: identity.RoleCustomer, Customer: &c}, nil
}

type fakeBookings struct {
	owners      []*string
	paymentErr  error
	paymentEvts []booking.PaymentEvent
	envelopes   map[string]bool
}

func (f *fakeBookings) CreateAppointment(_ context.Context, req booking.CreateRequest, owner *string) (booking.Booking, error) {
	if len(req.Name) < 2 {
		return booking.Booking{}, apperr.Validation("name must be at least 2 characters")
	}
	f.owners = append(f.owners, owner)
	payID := "pay_1"
	return booking.Booking{
		Appointment: model.Appointment{
			ID:            "a-1",
			CustomerID:    owner,
			Name:          req.Name,
			Email:         req.Email,
			Status:        model.StatusConfirmed,
			PaymentStatus: model.PaymentCompleted,
			PaymentID:     &payID,
			Amount:        req.Amount,
		},
		Payment: payments.Charge{ID: payID, Status: model.PaymentCompleted, Amount: req.Amount},
	}, nil
}

func (f *fakeBookings) UpdateAppointment(_ context.Context, id string, p booking.Patch) (model.Appointment, error) {
	return model.Appointment{ID: id, Status: *p.Status}, nil
}

func (f *fakeBookings) HandleSignatureEvent(_ context.Context, evt booking.SignatureEvent) (model.Appointment, bool, error) {
	if !f.envelopes[evt.EnvelopeID] {
		return model.Appointment{}, false, apperr.NotFound("appointment not found")
	}
	return model.Appointment{ID: "a-1"}, true, nil
}

func (f *fakeBookings) RecordPayment(_ context.Context, req booking.PaymentRequest) (payments.Charge, error) {
	if f.paymentErr != nil {
		return payments.Charge{}, f.paymentErr
	}
	return payments.Charge{ID: "pay_2", Amount: req.Amount, Status: model.PaymentCompleted}, nil
}

func (f *fakeBookings) ApplyPaymentStatus(_ context.Context, evt booking.PaymentEvent) (bool, error) {
	f.paymentEvts = append(f.paymentEvts, evt)
	return true, nil
}

func (f *fakeBookings) SendTomorrowReminders(context.Context) (int, error) { return 2, nil }

func (f *fakeBookings) Get(_ context.Context, id string) (model.Appointment, error) {
	if id != "a-1" {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	return model.Appointment{ID: id}, nil
}

func (f *fakeBookings) List(context.Context, int) ([]model.Appointment, error) {
	return []model.Appointment{{ID: "a-1"}}, nil
}

func (f *fakeBookings) ListByEmail(_ context.Context, email string) ([]model.Appointment, error) {
	return []model.Appointment{{ID: "a-1", Email: email}}, nil
}

func (f *fakeBookings) ListByCustomer(_ context.Context, customerID string) ([]model.Appointment, error) {
	return []model.Appointment{{ID: "a-1", CustomerID: &customerID}}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) ServicePackages(context.Context) ([]model.ServicePackage, error) {
	return model.DefaultServicePackages(), nil
}

func (fakeCatalog) Officers(context.Context) ([]model.Officer, error) {
	return nil, errors.New("db down")
}

type testServer struct {
	handler  http.Handler
	identity *fakeIdentity
	bookings *fakeBookings
}

func newTestServer(t *testing.T, authLimiter httpx.Limiter) *testServer {
	t.Helper()
	s := &testServer{
		identity: newFakeIdentity(),
		bookings: &fakeBookings{envelopes: map[string]bool{"env_known": true}},
	}
	s.handler = NewRouter(Deps{
		Identity:            s.identity,
		Bookings:            s.bookings,
		Catalog:             fakeCatalog{},
		Logger:              runtime.DiscardLogger(),
		AuthLimiter:         authLimiter,
		StripeWebhookSecret: stripeSecret,
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rw := httptest.NewRecorder()
	s.handler.ServeHTTP(rw, req)
	return rw
}

func decode(t *testing.T, rw *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out), rw.Body.String())
	return out
}

func TestRegisterThenProfile(t *testing.T) {
	s := newTestServer(t, nil)

	rw := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"a@b.com","password":"longenough1","fullName":"A B"}`, "")
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	body := decode(t, rw)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	customer := body["customer"].(map[string]any)
	assert.Equal(t, false, customer["isEmailVerified"])
	assert.NotContains(t, rw.Body.String(), "passwordHash")

	rw = s.do(t, http.MethodGet, "/api/auth/profile", "", token)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "a@b.com", decode(t, rw)["customer"].(map[string]any)["email"])

	rw = s.do(t, http.MethodPost, "/api/auth/logout", "", token)
	require.Equal(t, http.StatusOK, rw.Code)
	rw = s.do(t, http.MethodGet, "/api/auth/profile", "", token)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestRouteProtection(t *testing.T) {
	s := newTestServer(t, nil)
	_, customerToken, _ := s.identity.RegisterCustomer(context.Background(), identity.Registration{
		Email: "c@d.com", Password: "longenough1", FullName: "C D",
	}, identity.SessionMeta{})

	rw := s.do(t, http.MethodGet, "/api/auth/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
	assert.Equal(t, false, decode(t, rw)["success"])

	rw = s.do(t, http.MethodGet, "/api/appointments", "", customerToken)
	assert.Equal(t, http.StatusForbidden, rw.Code)
	assert.Equal(t, "forbidden", decode(t, rw)["message"])

	rw = s.do(t, http.MethodGet, "/api/appointments", "", adminToken)
	assert.Equal(t, http.StatusOK, rw.Code)

	rw = s.do(t, http.MethodGet, "/api/auth/profile", "", adminToken)
	assert.Equal(t, http.StatusForbidden, rw.Code)

	rw = s.do(t, http.MethodGet, "/api/appointments/missing", "", adminToken)
	assert.Equal(t, http.StatusNotFound, rw.Code)

	rw = s.do(t, http.MethodPatch, "/api/appointments/a-1", `{"status":"completed"}`, adminToken)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "completed", decode(t, rw)["appointment"].(map[string]any)["status"])

	rw = s.do(t, http.MethodPost, "/api/send-reminders", "", adminToken)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.EqualValues(t, 2, decode(t, rw)["count"])

	rw = s.do(t, http.MethodPost, "/api/send-reminders", "", "")
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

const bookingBody = `{"name":"Alex Morgan","email":"alex@example.com","phone":"5550102030",
	"address":"12 Harbour Street","preferredDate":"2026-05-20","sourceId":"cnon:ok","amount":225.00}`

func TestCreateAppointmentGuestAndCustomer(t *testing.T) {
	s := newTestServer(t, nil)

	rw := s.do(t, http.MethodPost, "/api/appointments", bookingBody, "")
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	body := decode(t, rw)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "pay_1", body["paymentId"])
	assert.Equal(t, "225.00", body["appointment"].(map[string]any)["amount"])
	require.Len(t, s.bookings.owners, 1)
	assert.Nil(t, s.bookings.owners[0])

	_, token, _ := s.identity.RegisterCustomer(context.Background(), identity.Registration{
		Email: "alex@example.com", Password: "longenough1", FullName: "Alex Morgan",
	}, identity.SessionMeta{})
	rw = s.do(t, http.MethodPost, "/api/auth/appointments", bookingBody, token)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Len(t, s.bookings.owners, 2)
	require.NotNil(t, s.bookings.owners[1])
	assert.Equal(t, "c-alex@example.com", *s.bookings.owners[1])

	rw = s.do(t, http.MethodPost, "/api/appointments", bookingBody, "stale-token")
	assert.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = s.do(t, http.MethodPost, "/api/appointments", `{"name":"A"}`, "")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, decode(t, rw)["message"], "name")

	rw = s.do(t, http.MethodPost, "/api/appointments", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestRecordPaymentStatuses(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"appointmentId":"a-1","sourceId":"tok","amount":"10.50"}`

	rw := s.do(t, http.MethodPost, "/api/payments", body, "")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "10.50", decode(t, rw)["payment"].(map[string]any)["amount"])

	s.bookings.paymentErr = apperr.NotFound("appointment not found")
	rw = s.do(t, http.MethodPost, "/api/payments", body, "")
	assert.Equal(t, http.StatusNotFound, rw.Code)

	s.bookings.paymentErr = apperr.Integration("payment processing failed", errors.New("declined"))
	rw = s.do(t, http.MethodPost, "/api/payments", body, "")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Equal(t, "payment processing failed", decode(t, rw)["message"])
}

func TestSignatureWebhook(t *testing.T) {
	s := newTestServer(t, nil)

	rw := s.do(t, http.MethodPost, "/api/docusign/webhook", `{"event":"envelope-completed","data":{"envelopeId":"env_known"}}`, "")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "processed", decode(t, rw)["status"])

	rw = s.do(t, http.MethodPost, "/api/docusign/webhook", `{"event":"envelope-completed","data":{"envelopeId":"env_other"}}`, "")
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func signedStripeRequest(t *testing.T, payload map[string]any, secret string) *http.Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   raw,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/stripe", strings.NewReader(string(raw)))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func stripeEvent(id, eventType, intentID string) map[string]any {
	return map[string]any{
		"id":          id,
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{"id": intentID, "object": "payment_intent"},
		},
	}
}

func TestStripeWebhook(t *testing.T) {
	s := newTestServer(t, nil)

	rw := httptest.NewRecorder()
	s.handler.ServeHTTP(rw, signedStripeRequest(t, stripeEvent("evt_1", "payment_intent.payment_failed", "pi_123"), stripeSecret))
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.Equal(t, "processed", decode(t, rw)["status"])
	require.Len(t, s.bookings.paymentEvts, 1)
	assert.Equal(t, booking.PaymentEvent{EventID: "evt_1", PaymentID: "pi_123", Status: model.PaymentFailed}, s.bookings.paymentEvts[0])

	rw = httptest.NewRecorder()
	s.handler.ServeHTTP(rw, signedStripeRequest(t, stripeEvent("evt_2", "customer.created", "cus_1"), stripeSecret))
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "ignored", decode(t, rw)["status"])

	rw = httptest.NewRecorder()
	s.handler.ServeHTTP(rw, signedStripeRequest(t, stripeEvent("evt_3", "payment_intent.succeeded", "pi_123"), "whsec_wrong"))
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Len(t, s.bookings.paymentEvts, 1)
}

func TestAuthRateLimitAndCatalog(t *testing.T) {
	s := newTestServer(t, httpx.NewMemoryRateLimiter(2, time.Minute))
	for i := 0; i < 2; i++ {
		rw := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"x@y.com","password":"whatever1"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rw.Code)
	}
	rw := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"x@y.com","password":"whatever1"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rw.Code)

	rw = s.do(t, http.MethodGet, "/api/service-packages", "", "")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Len(t, decode(t, rw)["packages"], 3)

	rw = s.do(t, http.MethodGet, "/api/officers", "", "")
	assert.Equal(t, http.StatusInternalServerError, rw.Code)
	assert.Equal(t, "internal server error", decode(t, rw)["message"])

	rw = s.do(t, http.MethodGet, "/api/customer/appointments?email=alex@example.com", "", "")
	assert.Equal(t, http.StatusOK, rw.Code)

	// Verification links do not share the exhausted credential budget.
	rw = s.do(t, http.MethodGet, "/api/auth/verify-email/good", "", "")
	assert.Equal(t, http.StatusOK, rw.Code)
	rw = s.do(t, http.MethodGet, "/api/auth/verify-email/bad", "", "")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestForwardedForNeedsTrustedProxy(t *testing.T) {
	trust, err := httpx.ParseProxyTrust([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	ids := newFakeIdentity()
	h := NewRouter(Deps{
		Identity:       ids,
		Bookings:       &fakeBookings{},
		Catalog:        fakeCatalog{},
		Logger:         runtime.DiscardLogger(),
		AuthLimiter:    httpx.NewMemoryRateLimiter(1, time.Minute),
		TrustedProxies: trust,
	})
	register := func(remote, xff, email string) int {
		body := `{"email":"` + email + `","password":"longenough1","fullName":"Sam Lee"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", xff)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw.Code
	}

	require.Equal(t, http.StatusCreated, register("198.51.100.7:5000", "1.1.1.1", "a@example.com"))
	require.Len(t, ids.metas, 1)
	assert.Equal(t, "198.51.100.7", ids.metas[0].IP, "direct clients cannot choose their address")

	assert.Equal(t, http.StatusTooManyRequests, register("198.51.100.7:5000", "2.2.2.2", "b@example.com"),
		"rotating the header does not reset the budget")

	require.Equal(t, http.StatusCreated, register("10.0.0.5:5000", "203.0.113.5", "c@example.com"))
	require.Len(t, ids.metas, 2)
	assert.Equal(t, "203.0.113.5", ids.metas[1].IP)
}
