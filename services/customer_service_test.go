package services

import (
	"context"
	"testing"

	apperrors "billing-service/common/errors"
	"billing-service/models"
	"billing-service/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCustomerService() *CustomerService {
	return NewCustomerService(memory.NewStore().Customers(), zap.NewNop())
}

func TestCustomerService_CreateNormalizes(t *testing.T) {
	svc := newCustomerService()

	c, err := svc.Create(context.Background(), models.CustomerRequest{
		Name:    "  Asha Rao ",
		Email:   " Asha@Example.com",
		PhoneNo: "+91 98765-43210",
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", c.Name)
	assert.Equal(t, "asha@example.com", c.Email)
	assert.NotEqual(t, uuid.Nil, c.ID)
}

func TestCustomerService_CreateRejectsInvalid(t *testing.T) {
	svc := newCustomerService()

	_, err := svc.Create(context.Background(), models.CustomerRequest{Name: " ", Email: "nope", PhoneNo: "12"})
	require.ErrorIs(t, err, ErrInvalidCustomer)

	result, ok := apperrors.As(err).Details.(models.ValidationResult)
	require.True(t, ok)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 3)
}

func TestCustomerService_DuplicateEmail(t *testing.T) {
	svc := newCustomerService()
	ctx := context.Background()
	req := models.CustomerRequest{Name: "Asha", Email: "asha@example.com", PhoneNo: "9876543210"}

	first, err := svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrCustomerEmailTaken)

	other, err := svc.Create(ctx, models.CustomerRequest{Name: "Ravi", Email: "ravi@example.com", PhoneNo: "9876543211"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, other.ID, models.CustomerRequest{Name: "Ravi", Email: first.Email, PhoneNo: "9876543211"})
	assert.ErrorIs(t, err, ErrCustomerEmailTaken)
}

func TestCustomerService_UpdateGetDelete(t *testing.T) {
	svc := newCustomerService()
	ctx := context.Background()

	c, err := svc.Create(ctx, models.CustomerRequest{Name: "Asha", Email: "asha@example.com", PhoneNo: "9876543210"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ID, models.CustomerRequest{Name: "Asha R", Email: "asha@example.com", PhoneNo: "9876543299"})
	require.NoError(t, err)
	assert.Equal(t, "Asha R", updated.Name)
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)

	list, total, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, c.ID), ErrCustomerNotFound)

	_, err = svc.Update(ctx, uuid.New(), models.CustomerRequest{Name: "X", Email: "x@example.com", PhoneNo: "9876543210"})
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}
