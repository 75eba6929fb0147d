package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StripeGateway charges through a confirmed PaymentIntent. The source id is a
// Stripe PaymentMethod id collected by the booking form.
type StripeGateway struct {
	currency  string
	newIntent func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func NewStripeGateway(secretKey, currency string) *StripeGateway {
	stripe.Key = secretKey
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{currency: strings.ToLower(currency), newIntent: paymentintent.New}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return Charge{}, apperr.Validation("payment source is required")
	}
	if err := ctx.Err(); err != nil {
		return Charge{}, apperr.Integration("payment cancelled", err)
	}
	currency := g.currency
	if req.Currency != "" {
		currency = strings.ToLower(req.Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Cents()),
		Currency:           stripe.String(currency),
		PaymentMethod:      stripe.String(req.SourceID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
		params.AddMetadata("appointment_id", req.IdempotencyKey)
	}

	pi, err := g.newIntent(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Msg != "" {
			return Charge{}, apperr.Integration("payment declined: "+serr.Msg, err)
		}
		return Charge{}, apperr.Integration("payment processing failed", err)
	}

	status, ok := mapIntentStatus(pi.Status)
	if !ok {
		return Charge{}, apperr.Integration("payment not completed: "+string(pi.Status), nil)
	}
	return Charge{
		ID:             pi.ID,
		Status:         status,
		ProviderStatus: string(pi.Status),
		Amount:         model.Amount(pi.Amount),
		Currency:       string(pi.Currency),
		Provider:       g.Name(),
		CreatedAt:      time.Unix(pi.Created, 0).UTC(),
	}, nil
}

// mapIntentStatus accepts succeeded and processing intents; processing ones
// settle later through the payment webhook.
func mapIntentStatus(s stripe.PaymentIntentStatus) (model.PaymentStatus, bool) {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return model.PaymentCompleted, true
	case stripe.PaymentIntentStatusProcessing:
		return model.PaymentPending, true
	default:
		return "", false
	}
}
