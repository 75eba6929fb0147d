package payments

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func TestSimulatedGatewayApprovesAndIsIdempotent(t *testing.T) {
	g := NewSimulatedGateway(0)
	req := ChargeRequest{IdempotencyKey: "appt-1", SourceID: "cnon:card-nonce-ok", Amount: model.MustAmount("225.00")}

	first, err := g.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, first.Status)
	assert.Equal(t, "COMPLETED", first.ProviderStatus)
	assert.Equal(t, "225.00", first.Amount.String())

	again, err := g.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := g.Charge(context.Background(), ChargeRequest{IdempotencyKey: "appt-2", SourceID: "tok", Amount: 100})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSimulatedGatewayRejectsMissingSourceAndHonoursContext(t *testing.T) {
	g := NewSimulatedGateway(time.Hour)
	_, err := g.Charge(context.Background(), ChargeRequest{Amount: 100})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Charge(ctx, ChargeRequest{SourceID: "tok", Amount: 100})
	assert.True(t, apperr.Is(err, apperr.KindIntegration))
}

func TestStripeGatewayBuildsConfirmedIntent(t *testing.T) {
	g := NewStripeGateway("sk_test_123", "USD")
	var got *stripe.PaymentIntentParams
	g.newIntent = func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		got = p
		return &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded, Amount: *p.Amount, Currency: stripe.CurrencyUSD}, nil
	}

	charge, err := g.Charge(context.Background(), ChargeRequest{IdempotencyKey: "appt-1", SourceID: "pm_card_visa", Amount: model.MustAmount("225.00")})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", charge.ID)
	assert.Equal(t, model.PaymentCompleted, charge.Status)
	assert.Equal(t, "225.00", charge.Amount.String())

	require.NotNil(t, got)
	assert.Equal(t, int64(22500), *got.Amount)
	assert.Equal(t, "usd", *got.Currency)
	assert.Equal(t, "appt-1", *got.IdempotencyKey)
	assert.True(t, *got.Confirm)
}

func TestStripeGatewayMapsFailures(t *testing.T) {
	g := NewStripeGateway("sk_test_123", "")
	g.newIntent = func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return nil, &stripe.Error{Msg: "Your card was declined."}
	}
	_, err := g.Charge(context.Background(), ChargeRequest{SourceID: "pm_card_declined", Amount: 100})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindIntegration))
	assert.Contains(t, apperr.Message(err), "Your card was declined.")

	g.newIntent = func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresAction}, nil
	}
	_, err = g.Charge(context.Background(), ChargeRequest{SourceID: "pm_3ds", Amount: 100})
	assert.True(t, apperr.Is(err, apperr.KindIntegration))
}
