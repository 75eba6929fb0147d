package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/httpx"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/identity"
)

// decodeJSON reads a single JSON document into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Validation("request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		default:
			return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
		}
	}
	return nil
}

// writeError maps err onto its HTTP status and the {success,message} body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorStatus(w, r, apperr.HTTPStatus(err), err)
}

func (h *Handler) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError || apperr.Is(err, apperr.KindIntegration) {
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"err", err,
		)
	}
	httpx.WriteError(w, status, apperr.Message(err))
}

func (h *Handler) sessionMeta(r *http.Request) identity.SessionMeta {
	return identity.SessionMeta{UserAgent: r.UserAgent(), IP: h.proxies.ClientIP(r)}
}
