package models

import "time"

const (
	PaymentEventLinkCreated = "payment_link_created"
	PaymentEventSucceeded   = "payment_succeeded"
	PaymentEventFailed      = "payment_failed"
	PaymentEventExpired     = "payment_expired"
)

// PaymentEvent is published after a payment lifecycle change commits.
type PaymentEvent struct {
	Type          string    `json:"type"`
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty"`
	AttemptID     string    `json:"payment_attempt_id"`
	Status        string    `json:"status"`
	InvoiceStatus string    `json:"invoice_status,omitempty"`
	LinkURL       string    `json:"link_url,omitempty"`
	Amount        int64     `json:"amount"`   // minor units
	Currency      string    `json:"currency"` // ISO 4217
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentEventTypeFor names the event emitted when an attempt reaches s.
func PaymentEventTypeFor(s AttemptStatus) string {
	switch s {
	case AttemptStatusSucceeded:
		return PaymentEventSucceeded
	case AttemptStatusFailed:
		return PaymentEventFailed
	case AttemptStatusExpired:
		return PaymentEventExpired
	default:
		return ""
	}
}
