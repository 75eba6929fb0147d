package model

import "time"

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// E-signature states written by the agreement flow. The column also stores any
// unrecognised provider event verbatim.
const (
	ESignSent      = "sent"
	ESignCompleted = "completed"
	ESignDeclined  = "declined"
	ESignVoided    = "voided"
)

type Appointment struct {
	ID               string            `json:"id"`
	CustomerID       *string           `json:"customerId,omitempty"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Phone            string            `json:"phone"`
	Address          string            `json:"address"`
	PreferredDate    string            `json:"preferredDate"`
	PreferredTime    string            `json:"preferredTime,omitempty"`
	Status           AppointmentStatus `json:"status"`
	PaymentID        *string           `json:"paymentId,omitempty"`
	PaymentStatus    PaymentStatus     `json:"paymentStatus"`
	Amount           Amount            `json:"amount"`
	TitleProtection  bool              `json:"titleProtection"`
	ESignStatus      *string           `json:"esignStatus,omitempty"`
	EnvelopeID       *string           `json:"envelopeId,omitempty"`
	ServicePackageID *string           `json:"servicePackageId,omitempty"`
	OfficerID        *string           `json:"officerId,omitempty"`
	ScheduledAt      *time.Time        `json:"scheduledAt,omitempty"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	Notes            *string           `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// DateLayout is the wire and storage format of PreferredDate.
const DateLayout = "2006-01-02"
