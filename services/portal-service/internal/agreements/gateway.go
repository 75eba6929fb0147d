package agreements

import "context"

type Envelope struct {
	AppointmentID string
	SignerName    string
	SignerEmail   string
	Title         string
}

type Result struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
	SigningURL string `json:"signingUrl"`
}

// Gateway sends a service agreement out for e-signature.
type Gateway interface {
	Name() string
	SendForSignature(ctx context.Context, env Envelope) (Result, error)
}
