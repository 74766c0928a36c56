package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"billing-service/common/logger"
	"billing-service/models"
	"billing-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// InvoiceService manages invoices outside the payment flow.
type InvoiceService struct {
	store  repository.Store
	locker InvoiceLocker
	logger *zap.Logger
	now    func() time.Time
}

// NewInvoiceService shares the payment service's locker so cancellation and
// link creation never interleave on one invoice.
func NewInvoiceService(store repository.Store, locker InvoiceLocker, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{store: store, locker: locker, logger: logger, now: time.Now}
}

func (s *InvoiceService) CreateInvoice(ctx context.Context, req models.CreateInvoiceRequest, createdBy string) (*models.Invoice, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	switch {
	case req.Amount <= 0:
		return nil, ErrInvalidInvoice.WithDetails(map[string]string{"amount": "must be greater than zero"})
	case !currencyPattern.MatchString(currency):
		return nil, ErrInvalidInvoice.WithDetails(map[string]string{"currency": "must be a 3-letter ISO 4217 code"})
	}

	if _, err := s.store.Customers().Get(ctx, req.CustomerID); err != nil {
		return nil, storageError(err, ErrInvoiceCustomerUnknown)
	}

	inv := &models.Invoice{
		CustomerID:  req.CustomerID,
		Amount:      req.Amount,
		Currency:    currency,
		Description: strings.TrimSpace(req.Description),
		Status:      models.InvoiceStatusDraft,
		CreatedBy:   createdBy,
	}

	// Numbers come from a random id; retry the rare collision.
	var err error
	for i := 0; i < 3; i++ {
		inv.ID = uuid.New()
		inv.Number = invoiceNumber(inv.ID)
		if err = s.store.Invoices().Create(ctx, inv); !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, storageError(err, nil)
	}

	logger.ForContext(ctx, s.logger).Info("Invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.Number),
		zap.Int64("amount", inv.Amount),
		zap.String("currency", inv.Currency),
	)
	return inv, nil
}

func invoiceNumber(id uuid.UUID) string {
	return "INV-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

// GetInvoice returns the invoice with its attempt history.
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*models.InvoiceDetail, error) {
	inv, err := s.store.Invoices().Get(ctx, id)
	if err != nil {
		return nil, storageError(err, ErrInvoiceNotFound)
	}
	attempts, err := s.store.Attempts().ListByInvoice(ctx, id)
	if err != nil {
		return nil, storageError(err, nil)
	}
	if attempts == nil {
		attempts = []models.PaymentAttempt{}
	}

	derived := models.DeriveInvoiceStatus(attempts)
	if inv.Status == models.InvoiceStatusCancelled {
		derived = inv.Status
	}
	if derived != inv.Status {
		logger.ForContext(ctx, s.logger).Warn("Invoice status differs from attempt history",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("status", string(inv.Status)),
			zap.String("derived_status", string(derived)),
		)
	}
	return &models.InvoiceDetail{Invoice: *inv, Attempts: attempts, DerivedStatus: derived}, nil
}

func (s *InvoiceService) ListInvoices(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]models.Invoice, int64, error) {
	invoices, total, err := s.store.Invoices().List(ctx, customerID, page, limit)
	if err != nil {
		return nil, 0, storageError(err, nil)
	}
	return invoices, total, nil
}

// CancelInvoice refuses paid or cancelled invoices and invoices with a live
// payment link. A link past its expiry no longer counts as live.
func (s *InvoiceService) CancelInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return nil, ErrPaymentAlreadyInProgress
		}
		return nil, err
	}
	defer unlock()

	var inv *models.Invoice
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Invoices().GetForUpdate(ctx, id)
		if err != nil {
			return storageError(err, ErrInvoiceNotFound)
		}
		if !locked.Status.CanTransitionTo(models.InvoiceStatusCancelled) {
			return ErrInvoiceNotCancellable.WithDetails(map[string]string{"status": string(locked.Status)})
		}
		if active, err := tx.Attempts().FindActiveByInvoice(ctx, id); err == nil {
			if !active.Lapsed(s.now()) {
				return inProgress(active)
			}
			if _, err := expireLapsed(ctx, tx, active, locked); err != nil {
				return err
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return storageError(err, nil)
		}
		if err := tx.Invoices().UpdateStatus(ctx, id, models.InvoiceStatusCancelled); err != nil {
			return storageError(err, nil)
		}
		locked.Status = models.InvoiceStatusCancelled
		inv = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.ForContext(ctx, s.logger).Info("Invoice cancelled", zap.String("invoice_id", id.String()))
	return inv, nil
}
