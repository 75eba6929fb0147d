package agreements

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type HTTPConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// HTTPGateway posts envelopes to an e-signature provider's REST endpoint.
// Calls go through a circuit breaker; while it is open SendForSignature fails
// without contacting the provider.
type HTTPGateway struct {
	url     string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[Result]
}

func NewHTTPGateway(cfg HTTPConfig, logger *slog.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "agreement-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Validation problems are the caller's fault, not the provider's.
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.Is(err, apperr.KindValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}
	return &HTTPGateway{
		url:   strings.TrimSpace(cfg.URL),
		token: strings.TrimSpace(cfg.Token),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[Result](settings),
	}
}

func (g *HTTPGateway) Name() string { return "http" }

type envelopeRequest struct {
	AppointmentID string `json:"appointmentId"`
	SignerName    string `json:"signerName"`
	SignerEmail   string `json:"signerEmail"`
	Title         string `json:"title"`
}

func (g *HTTPGateway) SendForSignature(ctx context.Context, env Envelope) (Result, error) {
	if g.url == "" {
		return Result{}, apperr.Integration("agreement gateway not configured", nil)
	}
	if strings.TrimSpace(env.SignerEmail) == "" {
		return Result{}, apperr.Validation("signer email is required")
	}

	res, err := g.breaker.Execute(func() (Result, error) {
		return g.post(ctx, env)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{}, apperr.Integration("agreement gateway unavailable", err)
	}
	return res, err
}

func (g *HTTPGateway) post(ctx context.Context, env Envelope) (Result, error) {
	raw, err := json.Marshal(envelopeRequest{
		AppointmentID: env.AppointmentID,
		SignerName:    env.SignerName,
		SignerEmail:   env.SignerEmail,
		Title:         env.Title,
	})
	if err != nil {
		return Result{}, apperr.Unexpected("encode envelope", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(raw))
	if err != nil {
		return Result{}, apperr.Unexpected("build agreement request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", env.AppointmentID)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return Result{}, apperr.Integration("agreement gateway request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, apperr.Integration("agreement gateway rejected envelope",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, apperr.Integration("agreement gateway returned invalid body", err)
	}
	if out.EnvelopeID == "" {
		return Result{}, apperr.Integration("agreement gateway returned no envelope id", nil)
	}
	if out.Status == "" {
		out.Status = model.ESignSent
	}
	return out, nil
}
