package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/booking"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/identity"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/payments"
)

type appointmentResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message,omitempty"`
	Appointment model.Appointment `json:"appointment"`
	PaymentID   string            `json:"paymentId,omitempty"`
}

type appointmentsResponse struct {
	Success      bool                `json:"success"`
	Appointments []model.Appointment `json:"appointments"`
}

// CreateAppointment serves both the guest and the customer booking routes;
// the customer is taken from the request identity when there is one.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var owner *string
	if id, ok := identity.FromContext(r.Context()); ok && id.Customer != nil {
		owner = &id.Customer.ID
	}

	b, err := h.bookings.CreateAppointment(r.Context(), req, owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{
		Success:     true,
		Message:     "appointment booked",
		Appointment: b.Appointment,
		PaymentID:   b.Payment.ID,
	})
}

func (h *Handler) CustomerAppointments(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	list, err := h.bookings.ListByCustomer(r.Context(), id.Subject)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentsResponse{Success: true, Appointments: list})
}

func (h *Handler) AppointmentsByEmail(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookings.ListByEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentsResponse{Success: true, Appointments: list})
}

type paymentResponse struct {
	Success bool            `json:"success"`
	Payment payments.Charge `json:"payment"`
}

// RecordPayment reports gateway failures as 400, unlike booking creation.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req booking.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	charge, err := h.bookings.RecordPayment(r.Context(), req)
	if err != nil {
		if apperr.Is(err, apperr.KindIntegration) {
			h.writeErrorStatus(w, r, http.StatusBadRequest, err)
			return
		}
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Success: true, Payment: charge})
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	list, err := h.bookings.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentsResponse{Success: true, Appointments: list})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{Success: true, Appointment: appt})
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var patch booking.Patch
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.bookings.UpdateAppointment(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{Success: true, Message: "appointment updated", Appointment: appt})
}

type remindersResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func (h *Handler) SendReminders(w http.ResponseWriter, r *http.Request) {
	n, err := h.bookings.SendTomorrowReminders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, remindersResponse{
		Success: true,
		Message: strconv.Itoa(n) + " reminders scheduled",
		Count:   n,
	})
}

type servicePackagesResponse struct {
	Success  bool                   `json:"success"`
	Packages []model.ServicePackage `json:"packages"`
}

func (h *Handler) ServicePackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.catalog.ServicePackages(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, servicePackagesResponse{Success: true, Packages: pkgs})
}

type officersResponse struct {
	Success  bool            `json:"success"`
	Officers []model.Officer `json:"officers"`
}

func (h *Handler) Officers(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.Officers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, officersResponse{Success: true, Officers: list})
}
