package services

import (
	"errors"
	"net/http"

	apperrors "billing-service/common/errors"
	"billing-service/models"
	"billing-service/repository"
)

// Payment link errors
var (
	ErrInvoiceNotFound          = apperrors.New(http.StatusNotFound, "Invoice not found", nil)
	ErrInvoiceAlreadyPaid       = apperrors.New(http.StatusConflict, "Invoice is already paid", nil)
	ErrInvoiceCancelled         = apperrors.New(http.StatusConflict, "Invoice is cancelled", nil)
	ErrPaymentAlreadyInProgress = apperrors.New(http.StatusConflict, "A payment is already in progress for this invoice", nil)
	ErrGatewayUnavailable       = apperrors.NewRetryable(http.StatusServiceUnavailable, "Payment gateway unavailable")
	ErrGatewayRejected          = apperrors.New(http.StatusUnprocessableEntity, "Payment gateway rejected the request", nil)
	ErrAttemptNotFound          = apperrors.New(http.StatusNotFound, "Payment attempt not found", nil)
)

// Webhook errors
var (
	ErrInvalidSignature      = apperrors.New(http.StatusBadRequest, "Invalid webhook signature", nil)
	ErrMalformedEvent        = apperrors.New(http.StatusBadRequest, "Malformed webhook event", nil)
	ErrUnknownPaymentAttempt = apperrors.New(http.StatusNotFound, "Unknown payment attempt", nil)
)

// Invoice and customer errors
var (
	ErrInvoiceNotCancellable  = apperrors.New(http.StatusConflict, "Invoice can no longer be cancelled", nil)
	ErrInvoiceCustomerUnknown = apperrors.New(http.StatusUnprocessableEntity, "Invoice customer does not exist", nil)
	ErrInvalidInvoice         = apperrors.New(http.StatusBadRequest, "Invalid invoice", nil)
	ErrCustomerNotFound       = apperrors.New(http.StatusNotFound, "Customer not found", nil)
	ErrCustomerEmailTaken     = apperrors.New(http.StatusConflict, "A customer with this email already exists", nil)
	ErrInvalidCustomer        = apperrors.New(http.StatusBadRequest, "Invalid customer", nil)
)

// storageError maps repository.ErrNotFound onto notFound and anything else
// onto a 500.
func storageError(err error, notFound *apperrors.Error) error {
	if notFound != nil && errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.ErrDatabaseQuery.Wrap(err)
}

// checkPayable rejects invoices that can no longer take a payment link.
func checkPayable(inv *models.Invoice) error {
	switch inv.Status {
	case models.InvoiceStatusPaid:
		return ErrInvoiceAlreadyPaid
	case models.InvoiceStatusCancelled:
		return ErrInvoiceCancelled
	}
	return nil
}

func inProgress(active *models.PaymentAttempt) error {
	return ErrPaymentAlreadyInProgress.WithDetails(map[string]interface{}{
		"paymentAttemptId": active.ID,
		"linkUrl":          active.LinkURL,
		"status":           active.Status,
	})
}
