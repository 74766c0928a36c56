package repository

import (
	"context"
	"errors"
	"time"

	"billing-service/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicate           = errors.New("record already exists")
	ErrActiveAttemptExists = errors.New("invoice already has an active payment attempt")
	ErrDuplicateEvent      = errors.New("gateway event already recorded")
)

type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	List(ctx context.Context, page, limit int) ([]models.Customer, int64, error)
	Update(ctx context.Context, customer *models.Customer) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// InvoiceRepository is the invoice store. UpdateStatus is the only writer of Invoice.Status.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	// GetForUpdate loads the invoice and row-locks it until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]models.Invoice, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) error
}

// PaymentAttemptRepository is the payment ledger. Attempts are never deleted.
type PaymentAttemptRepository interface {
	// Create returns ErrActiveAttemptExists when the invoice already has an active attempt.
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.AttemptStatus, eventAt *time.Time) error
	FindActiveByInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentAttempt, error)
	FindByGatewayReference(ctx context.Context, ref string) (*models.PaymentAttempt, error)
	FindByGatewayReferenceForUpdate(ctx context.Context, ref string) (*models.PaymentAttempt, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentAttempt, error)
}

type GatewayEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	// Create returns ErrDuplicateEvent when the event id is already recorded.
	Create(ctx context.Context, event *models.GatewayEvent) error
}

// Store groups the repositories and runs functions against them atomically.
type Store interface {
	Customers() CustomerRepository
	Invoices() InvoiceRepository
	Attempts() PaymentAttemptRepository
	GatewayEvents() GatewayEventRepository
	// WithinTx runs fn against a transactional Store; fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
