package repository

import (
	"context"

	"billing-service/models"

	"gorm.io/gorm"
)

type GormGatewayEventRepository struct {
	db *gorm.DB
}

func NewGormGatewayEventRepository(db *gorm.DB) *GormGatewayEventRepository {
	return &GormGatewayEventRepository{db: db}
}

func (r *GormGatewayEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.GatewayEvent{}).Where("event_id = ?", eventID).Count(&n).Error
	return n > 0, err
}

func (r *GormGatewayEventRepository) Create(ctx context.Context, event *models.GatewayEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if isDuplicate(err) {
		return ErrDuplicateEvent
	}
	return err
}
