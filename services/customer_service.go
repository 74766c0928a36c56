package services

import (
	"context"
	"errors"
	"strings"

	"billing-service/common/logger"
	"billing-service/models"
	"billing-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerService backs the /api/users endpoints.
type CustomerService struct {
	repo   repository.CustomerRepository
	logger *zap.Logger
}

func NewCustomerService(repo repository.CustomerRepository, logger *zap.Logger) *CustomerService {
	return &CustomerService{repo: repo, logger: logger}
}

func normalizeCustomer(req models.CustomerRequest) models.CustomerRequest {
	return models.CustomerRequest{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		PhoneNo: strings.TrimSpace(req.PhoneNo),
	}
}

func (s *CustomerService) Create(ctx context.Context, req models.CustomerRequest) (*models.Customer, error) {
	req = normalizeCustomer(req)
	if result := models.ValidateCustomer(req); !result.Valid {
		return nil, ErrInvalidCustomer.WithDetails(result)
	}

	c := &models.Customer{Name: req.Name, Email: req.Email, PhoneNo: req.PhoneNo}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCustomerEmailTaken
		}
		return nil, storageError(err, nil)
	}
	logger.ForContext(ctx, s.logger).Info("Customer created", zap.String("customer_id", c.ID.String()))
	return c, nil
}

func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, ErrCustomerNotFound)
	}
	return c, nil
}

func (s *CustomerService) List(ctx context.Context, page, limit int) ([]models.Customer, int64, error) {
	customers, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, storageError(err, nil)
	}
	return customers, total, nil
}

func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, req models.CustomerRequest) (*models.Customer, error) {
	req = normalizeCustomer(req)
	if result := models.ValidateCustomer(req); !result.Valid {
		return nil, ErrInvalidCustomer.WithDetails(result)
	}

	c := &models.Customer{ID: id, Name: req.Name, Email: req.Email, PhoneNo: req.PhoneNo}
	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCustomerEmailTaken
		}
		return nil, storageError(err, ErrCustomerNotFound)
	}
	return s.Get(ctx, id)
}

func (s *CustomerService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return storageError(err, ErrCustomerNotFound)
	}
	logger.ForContext(ctx, s.logger).Info("Customer deleted", zap.String("customer_id", id.String()))
	return nil
}
