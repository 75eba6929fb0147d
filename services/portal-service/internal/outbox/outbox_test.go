package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent("appointment", "appt-1", EventAppointmentConfirmed, map[string]any{
		"appointment_id": "appt-1",
		"amount":         "225.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "appointment", evt.AggregateType)

	var body map[string]string
	require.NoError(t, json.Unmarshal(evt.Payload, &body))
	assert.Equal(t, "225.00", body["amount"])
}

func TestToMessageCarriesMetadata(t *testing.T) {
	p := NewPublisher(nil, NewRepository(), nil, PublisherConfig{})
	msg := p.toMessage(context.Background(), Record{
		ID:            7,
		EventID:       "evt-7",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
		EventType:     EventAppointmentUpdated,
		Payload:       []byte(`{}`),
		CreatedAt:     time.Date(2026, 5, 11, 15, 30, 0, 0, time.UTC),
	})
	assert.Equal(t, EventAppointmentUpdated, msg.Topic)
	assert.Equal(t, "appt-1", string(msg.Key))
	assert.Equal(t, "evt-7", kafkax.Header(msg.Headers, "event_id"))
	assert.Equal(t, "appointment", kafkax.Header(msg.Headers, "aggregate_type"))
	assert.Equal(t, "portal-service", kafkax.Header(msg.Headers, "source"))
	assert.Equal(t, "2026-05-11T15:30:00Z", kafkax.Header(msg.Headers, "occurred_at"))
}

func TestPublisherDisabledWithoutBrokers(t *testing.T) {
	p := NewPublisher(nil, NewRepository(), nil, PublisherConfig{Brokers: " "})
	assert.False(t, p.Enabled())
}
