package services

import (
	"context"
	"time"

	"billing-service/models"

	"github.com/google/uuid"
)

// CustomerContact is passed to the gateway so it can prefill checkout.
type CustomerContact struct {
	Name  string
	Email string
	Phone string
}

// LinkRequest describes the hosted payment page to create for one attempt.
type LinkRequest struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	AttemptID     uuid.UUID
	Amount        int64
	Currency      string
	Description   string
	Contact       CustomerContact
	ExpiresAt     time.Time
}

// PaymentLink is what the gateway hands back for a LinkRequest.
type PaymentLink struct {
	LinkID           string
	LinkURL          string
	GatewayReference string
	ExpiresAt        *time.Time
}

// GatewayEvent is a verified gateway notification reduced to what the ledger needs.
// Status is empty for event types the ledger does not act on.
type GatewayEvent struct {
	EventID          string
	Type             string
	GatewayReference string
	Status           models.AttemptStatus
	OccurredAt       time.Time
}

func (e *GatewayEvent) Actionable() bool {
	return e.Status != ""
}

// PaymentGateway is the outbound boundary to the payment processor.
type PaymentGateway interface {
	// CreateLink fails with ErrGatewayUnavailable (retryable) or ErrGatewayRejected.
	CreateLink(ctx context.Context, req LinkRequest) (*PaymentLink, error)
	// VerifySignature checks the signature header against the raw, unparsed body.
	VerifySignature(payload []byte, signatureHeader string) bool
	// ParseEvent fails with ErrMalformedEvent on structural errors.
	ParseEvent(payload []byte) (*GatewayEvent, error)
	// ExpireLink invalidates a link that never made it into the ledger.
	ExpireLink(ctx context.Context, linkID string) error
}
