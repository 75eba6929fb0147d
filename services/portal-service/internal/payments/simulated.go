package payments

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

// SimulatedGateway stands in for a card processor: it waits a fixed delay and
// approves every charge that names a payment source.
type SimulatedGateway struct {
	delay time.Duration

	mu      sync.Mutex
	charges map[string]Charge
}

func NewSimulatedGateway(delay time.Duration) *SimulatedGateway {
	return &SimulatedGateway{delay: delay, charges: map[string]Charge{}}
}

func (g *SimulatedGateway) Name() string { return "simulated" }

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return Charge{}, apperr.Validation("payment source is required")
	}
	if req.Amount <= 0 {
		return Charge{}, apperr.Validation("amount must be greater than 0")
	}

	if req.IdempotencyKey != "" {
		g.mu.Lock()
		prev, ok := g.charges[req.IdempotencyKey]
		g.mu.Unlock()
		if ok {
			return prev, nil
		}
	}

	if g.delay > 0 {
		t := time.NewTimer(g.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Charge{}, apperr.Integration("payment cancelled", ctx.Err())
		case <-t.C:
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	charge := Charge{
		ID:             "pay_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:         model.PaymentCompleted,
		ProviderStatus: "COMPLETED",
		Amount:         req.Amount,
		Currency:       currency,
		Provider:       g.Name(),
		CreatedAt:      time.Now().UTC(),
	}
	if req.IdempotencyKey != "" {
		g.mu.Lock()
		g.charges[req.IdempotencyKey] = charge
		g.mu.Unlock()
	}
	return charge, nil
}
