package repository

import (
	"context"

	"gorm.io/gorm"
)

// GormStore is the postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Customers() CustomerRepository { return NewGormCustomerRepository(s.db) }

func (s *GormStore) Invoices() InvoiceRepository { return NewGormInvoiceRepository(s.db) }

func (s *GormStore) Attempts() PaymentAttemptRepository { return NewGormPaymentAttemptRepository(s.db) }

func (s *GormStore) GatewayEvents() GatewayEventRepository { return NewGormGatewayEventRepository(s.db) }

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}
