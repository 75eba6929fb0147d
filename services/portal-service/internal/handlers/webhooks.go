package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/booking"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/metrics"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type signatureWebhookRequest struct {
	Event string `json:"event"`
	Data  struct {
		EnvelopeID string `json:"envelopeId"`
	} `json:"data"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// SignatureWebhook receives e-signature callbacks {event, data:{envelopeId}}.
func (h *Handler) SignatureWebhook(w http.ResponseWriter, r *http.Request) {
	var req signatureWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, applied, err := h.bookings.HandleSignatureEvent(r.Context(), booking.SignatureEvent{
		Event:      req.Event,
		EnvelopeID: req.Data.EnvelopeID,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("esign", "rejected").Inc()
		h.writeError(w, r, err)
		return
	}

	status := "duplicate"
	if applied {
		status = "processed"
	}
	metrics.WebhookEvents.WithLabelValues("esign", status).Inc()
	h.logger.Info("esign webhook handled",
		"event", req.Event,
		"envelope_id", req.Data.EnvelopeID,
		"appointment_id", appt.ID,
		"status", status,
	)
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{Success: true, Status: status})
}

var stripePaymentStatuses = map[string]model.PaymentStatus{
	"payment_intent.succeeded":      model.PaymentCompleted,
	"payment_intent.payment_failed": model.PaymentFailed,
}

// StripeWebhook applies payment intent outcomes. The signature is the only
// authentication.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("stripe", "rejected").Inc()
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	status, handled := stripePaymentStatuses[evtType]
	if !handled {
		metrics.WebhookEvents.WithLabelValues("stripe", "ignored").Inc()
		httpx.WriteJSON(w, http.StatusOK, webhookResponse{Success: true, Status: "ignored"})
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil || intent.ID == "" {
		h.logger.Error("stripe: invalid payment intent payload", "provider_event_id", evt.ID, "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid payment intent payload")
		return
	}

	applied, err := h.bookings.ApplyPaymentStatus(r.Context(), booking.PaymentEvent{
		EventID:   evt.ID,
		PaymentID: intent.ID,
		Status:    status,
	})
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		h.logger.Warn("stripe: payment intent has no appointment", "payment_id", intent.ID)
		metrics.WebhookEvents.WithLabelValues("stripe", "ignored").Inc()
		httpx.WriteJSON(w, http.StatusOK, webhookResponse{Success: true, Status: "ignored"})
		return
	case err != nil:
		metrics.WebhookEvents.WithLabelValues("stripe", "failed").Inc()
		h.writeError(w, r, err)
		return
	}

	outcome := "duplicate"
	if applied {
		outcome = "processed"
	}
	metrics.WebhookEvents.WithLabelValues("stripe", outcome).Inc()
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{Success: true, Status: outcome})
}
