package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "portal base url")
		evtType = flag.String("type", config.String("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
		intent  = flag.String("payment-intent", config.String("PAYMENT_INTENT_ID", ""), "payment intent id stored on the appointment (pi_...)")
		secret  = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*intent) == "" {
		fatal("PAYMENT_INTENT_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), *evtType, now, *intent)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, intentID string) ([]byte, error) {
	var status string
	switch eventType {
	case "payment_intent.succeeded":
		status = "succeeded"
	case "payment_intent.payment_failed":
		status = "requires_payment_method"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":     intentID,
				"object": "payment_intent",
				"status": status,
			},
		},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
