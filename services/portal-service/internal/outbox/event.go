package outbox

import "encoding/json"

const (
	EventCustomerRegistered   = "portal.customer.registered.v1"
	EventAppointmentPending   = "portal.appointment.pending.v1"
	EventAppointmentConfirmed = "portal.appointment.confirmed.v1"
	EventAppointmentUpdated   = "portal.appointment.updated.v1"
	EventAgreementStatus      = "portal.agreement.status.v1"
	EventPaymentStatus        = "portal.payment.status.v1"
)

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload into an Event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
