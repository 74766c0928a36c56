package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is the billable party an invoice is raised against. Email is
// unique among customers that have not been deleted.
type Customer struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Email     string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_customers_email_live,where:deleted_at IS NULL" json:"email"`
	PhoneNo   string         `gorm:"type:varchar(32);not null" json:"phoneNo"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CustomerRequest is the create/update body for /api/users.
type CustomerRequest struct {
	Name    string `json:"name" validate:"notblank"`
	Email   string `json:"email" validate:"contact_email"`
	PhoneNo string `json:"phoneNo" validate:"phone"`
}
