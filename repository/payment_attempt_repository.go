package repository

import (
	"context"
	"time"

	"billing-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPaymentAttemptRepository struct {
	db *gorm.DB
}

func NewGormPaymentAttemptRepository(db *gorm.DB) *GormPaymentAttemptRepository {
	return &GormPaymentAttemptRepository{db: db}
}

func activeStatuses() []string {
	out := make([]string, 0, len(models.ActiveAttemptStatuses))
	for _, s := range models.ActiveAttemptStatuses {
		out = append(out, string(s))
	}
	return out
}

func (r *GormPaymentAttemptRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(attempt).Error
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == ActiveAttemptIndex {
			return ErrActiveAttemptExists
		}
		return ErrDuplicate
	}
	return err
}

func (r *GormPaymentAttemptRepository) Get(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &attempt, nil
}

func (r *GormPaymentAttemptRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AttemptStatus, eventAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if eventAt != nil {
		updates["last_event_at"] = eventAt.UTC()
	}

	res := r.db.WithContext(ctx).Model(&models.PaymentAttempt{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormPaymentAttemptRepository) FindActiveByInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND status IN ?", invoiceID, activeStatuses()).
		Order("created_at DESC").
		First(&attempt).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &attempt, nil
}

func (r *GormPaymentAttemptRepository) FindByGatewayReference(ctx context.Context, ref string) (*models.PaymentAttempt, error) {
	return r.findByReference(r.db.WithContext(ctx), ref)
}

func (r *GormPaymentAttemptRepository) FindByGatewayReferenceForUpdate(ctx context.Context, ref string) (*models.PaymentAttempt, error) {
	return r.findByReference(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), ref)
}

func (r *GormPaymentAttemptRepository) findByReference(db *gorm.DB, ref string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := db.Where("gateway_reference = ?", ref).First(&attempt).Error; err != nil {
		return nil, notFound(err)
	}
	return &attempt, nil
}

func (r *GormPaymentAttemptRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&attempts).Error
	return attempts, err
}
