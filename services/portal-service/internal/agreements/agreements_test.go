package agreements

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedGatewayReturnsSentEnvelope(t *testing.T) {
	g := NewSimulatedGateway(0, "https://audits.example/")
	res, err := g.SendForSignature(context.Background(), Envelope{AppointmentID: "appt-1", SignerEmail: "a@b.com"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.EnvelopeID, "env_"))
	assert.Equal(t, "sent", res.Status)
	assert.Equal(t, "https://audits.example/sign/"+res.EnvelopeID, res.SigningURL)
}

func TestHTTPGatewayPostsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "appt-1", r.Header.Get("Idempotency-Key"))
		var body envelopeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body.SignerEmail)
		_ = json.NewEncoder(w).Encode(Result{EnvelopeID: "env-42", SigningURL: "https://sign.example/env-42"})
	}))
	defer srv.Close()

	g := NewHTTPGateway(HTTPConfig{URL: srv.URL, Token: "secret"}, runtime.DiscardLogger())
	res, err := g.SendForSignature(context.Background(), Envelope{AppointmentID: "appt-1", SignerName: "A B", SignerEmail: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "env-42", res.EnvelopeID)
	assert.Equal(t, "sent", res.Status)
}

func TestHTTPGatewayBreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewHTTPGateway(HTTPConfig{URL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Minute}, runtime.DiscardLogger())
	env := Envelope{AppointmentID: "appt-1", SignerEmail: "a@b.com"}
	for i := 0; i < 2; i++ {
		_, err := g.SendForSignature(context.Background(), env)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindIntegration))
	}

	_, err := g.SendForSignature(context.Background(), env)
	require.Error(t, err)
	assert.Equal(t, "agreement gateway unavailable", apperr.Message(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
