package agreements

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

// SimulatedGateway returns a canned envelope after a fixed delay.
type SimulatedGateway struct {
	delay   time.Duration
	baseURL string
}

func NewSimulatedGateway(delay time.Duration, baseURL string) *SimulatedGateway {
	return &SimulatedGateway{delay: delay, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *SimulatedGateway) Name() string { return "simulated" }

func (g *SimulatedGateway) SendForSignature(ctx context.Context, env Envelope) (Result, error) {
	if strings.TrimSpace(env.SignerEmail) == "" {
		return Result{}, apperr.Validation("signer email is required")
	}
	if g.delay > 0 {
		t := time.NewTimer(g.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Result{}, apperr.Integration("agreement request cancelled", ctx.Err())
		case <-t.C:
		}
	}

	id := "env_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return Result{
		EnvelopeID: id,
		Status:     model.ESignSent,
		SigningURL: g.baseURL + "/sign/" + url.PathEscape(id),
	}, nil
}
