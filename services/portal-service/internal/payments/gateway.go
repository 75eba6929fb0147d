package payments

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

type ChargeRequest struct {
	// IdempotencyKey makes a repeated charge for the same booking return the first result.
	IdempotencyKey string
	SourceID       string
	Amount         model.Amount
	Currency       string
	Description    string
	ReceiptEmail   string
}

type Charge struct {
	ID             string              `json:"id"`
	Status         model.PaymentStatus `json:"status"`
	ProviderStatus string              `json:"providerStatus"`
	Amount         model.Amount        `json:"amount"`
	Currency       string              `json:"currency"`
	Provider       string              `json:"provider"`
	CreatedAt      time.Time           `json:"createdAt"`
}

type Gateway interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
}
