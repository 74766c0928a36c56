package models

import (
	"time"

	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptStatusCreated   AttemptStatus = "created"
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusExpired   AttemptStatus = "expired"
)

// ActiveAttemptStatuses are the statuses covered by the single-active-attempt rule.
var ActiveAttemptStatuses = []AttemptStatus{AttemptStatusCreated, AttemptStatusPending}

var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptStatusCreated: {AttemptStatusPending, AttemptStatusSucceeded, AttemptStatusFailed, AttemptStatusExpired},
	AttemptStatusPending: {AttemptStatusSucceeded, AttemptStatusFailed, AttemptStatusExpired},
}

func (s AttemptStatus) IsActive() bool {
	return s == AttemptStatusCreated || s == AttemptStatusPending
}

func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusSucceeded || s == AttemptStatusFailed || s == AttemptStatusExpired
}

func (s AttemptStatus) IsValid() bool {
	return s.IsActive() || s.IsTerminal()
}

// CanTransitionTo reports whether an attempt in s may move to next. Terminal
// states have no exits and same-state moves are not transitions.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	for _, allowed := range attemptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvoiceStatusFor maps a terminal attempt outcome onto its invoice.
func InvoiceStatusFor(s AttemptStatus) (InvoiceStatus, bool) {
	switch s {
	case AttemptStatusSucceeded:
		return InvoiceStatusPaid, true
	case AttemptStatusFailed, AttemptStatusExpired:
		return InvoiceStatusFailed, true
	default:
		return "", false
	}
}

// DeriveInvoiceStatus returns the invoice status implied by its attempt history.
// A single succeeded attempt makes the invoice paid.
func DeriveInvoiceStatus(attempts []PaymentAttempt) InvoiceStatus {
	if len(attempts) == 0 {
		return InvoiceStatusDraft
	}
	active := false
	for _, a := range attempts {
		switch {
		case a.Status == AttemptStatusSucceeded:
			return InvoiceStatusPaid
		case a.Status.IsActive():
			active = true
		}
	}
	if active {
		return InvoiceStatusAwaitingPayment
	}
	return InvoiceStatusFailed
}

// PaymentAttempt is one gateway payment link and its lifecycle. Amount and
// currency are copied from the invoice when the attempt is created.
type PaymentAttempt struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID        uuid.UUID     `gorm:"type:uuid;index;not null" json:"invoiceId"`
	LinkID           string        `gorm:"type:varchar(255);not null" json:"linkId"`
	LinkURL          string        `gorm:"type:varchar(2048)" json:"linkUrl"`
	GatewayReference string        `gorm:"type:varchar(255);uniqueIndex;not null" json:"gatewayReference"`
	Status           AttemptStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	Amount           int64         `gorm:"not null" json:"amount"`
	Currency         string        `gorm:"type:varchar(3);not null" json:"currency"`
	ExpiresAt        *time.Time    `json:"expiresAt,omitempty"`
	LastEventAt      *time.Time    `json:"lastEventAt,omitempty"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Lapsed reports whether a still-active attempt's link expired before now.
// The gateway no longer accepts payment on a lapsed link even if its expiry
// notification never arrived.
func (a *PaymentAttempt) Lapsed(now time.Time) bool {
	return a.Status.IsActive() && a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// CreatePaymentLinkRequest is the body for POST /api/payments/create-payment-link.
type CreatePaymentLinkRequest struct {
	InvoiceID uuid.UUID `json:"invoiceId" binding:"required"`
}

// PaymentLinkResponse is returned once a payment link exists for an invoice.
type PaymentLinkResponse struct {
	PaymentAttemptID uuid.UUID  `json:"paymentAttemptId"`
	InvoiceID        uuid.UUID  `json:"invoiceId"`
	LinkURL          string     `json:"linkUrl"`
	Status           string     `json:"status"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
}
