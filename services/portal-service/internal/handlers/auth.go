package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/homeaudit/libs/auth"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/identity"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

type sessionResponse struct {
	Success  bool               `json:"success"`
	Token    string             `json:"token"`
	Customer model.CustomerView `json:"customer"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req identity.Registration
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, token, err := h.identity.RegisterCustomer(r.Context(), req, h.sessionMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{Success: true, Token: token, Customer: c.View()})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req identity.Credentials
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, token, err := h.identity.LoginCustomer(r.Context(), req, h.sessionMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Success: true, Token: token, Customer: c.View()})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.identity.Logout(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "logged out"})
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ok, err := h.identity.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid or already used verification link")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "email verified"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword answers the same way whether or not the email is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.identity.GeneratePasswordResetToken(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "if that email is registered, a reset link has been sent",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req identity.PasswordReset
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.identity.ResetPassword(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "password updated, please sign in again"})
}

type adminLoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req identity.AdminCredentials
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	token, exp, err := h.identity.AdminLogin(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, adminLoginResponse{Success: true, Token: token, ExpiresAt: exp})
}

type profileResponse struct {
	Success  bool               `json:"success"`
	Customer model.CustomerView `json:"customer"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	if id.Customer == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profileResponse{Success: true, Customer: id.Customer.View()})
}
