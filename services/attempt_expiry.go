package services

import (
	"context"

	"billing-service/models"
	"billing-service/repository"
)

// expireLapsed closes an attempt whose link ran out without an expiry
// notification from the gateway and fails its invoice. inv must be the
// invoice locked in tx; it is updated in place and a snapshot is returned.
func expireLapsed(ctx context.Context, tx repository.Store, attempt *models.PaymentAttempt, inv *models.Invoice) (*models.Invoice, error) {
	if err := tx.Attempts().UpdateStatus(ctx, attempt.ID, models.AttemptStatusExpired, nil); err != nil {
		return nil, storageError(err, nil)
	}
	attempt.Status = models.AttemptStatusExpired

	if inv.Status.CanTransitionTo(models.InvoiceStatusFailed) {
		if err := tx.Invoices().UpdateStatus(ctx, inv.ID, models.InvoiceStatusFailed); err != nil {
			return nil, storageError(err, nil)
		}
		inv.Status = models.InvoiceStatusFailed
	}
	snapshot := *inv
	return &snapshot, nil
}
