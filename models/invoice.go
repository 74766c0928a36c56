package models

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft           InvoiceStatus = "draft"
	InvoiceStatusAwaitingPayment InvoiceStatus = "awaiting_payment"
	InvoiceStatusPaid            InvoiceStatus = "paid"
	InvoiceStatusFailed          InvoiceStatus = "failed"
	InvoiceStatusCancelled       InvoiceStatus = "cancelled"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:           {InvoiceStatusAwaitingPayment, InvoiceStatusCancelled},
	InvoiceStatusAwaitingPayment: {InvoiceStatusAwaitingPayment, InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusCancelled},
	InvoiceStatusFailed:          {InvoiceStatusAwaitingPayment, InvoiceStatusCancelled},
}

// CanTransitionTo reports whether an invoice in s may move to next.
// AwaitingPayment -> AwaitingPayment is the retry path after a failed attempt.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Invoice is a billable record against a customer. Amount is in minor units.
type Invoice struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Number          string        `gorm:"type:varchar(32);uniqueIndex;not null" json:"number"`
	CustomerID      uuid.UUID     `gorm:"type:uuid;index;not null" json:"customerId"`
	Amount          int64         `gorm:"not null;check:amount > 0" json:"amount"`
	Currency        string        `gorm:"type:varchar(3);not null" json:"currency"`
	Description     string        `gorm:"type:varchar(500)" json:"description,omitempty"`
	Status          InvoiceStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	StatusChangedAt time.Time     `gorm:"not null" json:"statusChangedAt"`
	CreatedBy       string        `gorm:"type:varchar(64)" json:"createdBy,omitempty"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// CreateInvoiceRequest is the body for POST /api/invoices.
type CreateInvoiceRequest struct {
	CustomerID  uuid.UUID `json:"customerId" binding:"required"`
	Amount      int64     `json:"amount" binding:"required,gt=0"`
	Currency    string    `json:"currency" binding:"required,len=3,alpha"`
	Description string    `json:"description" binding:"max=500"`
}

// InvoiceDetail is an invoice together with its payment history.
type InvoiceDetail struct {
	Invoice
	Attempts []PaymentAttempt `json:"attempts"`
	// DerivedStatus is the status implied by the attempt history; it differs
	// from Status only for Draft and Cancelled invoices or after drift.
	DerivedStatus InvoiceStatus `json:"derivedStatus"`
}
