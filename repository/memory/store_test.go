package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"billing-service/models"
	"billing-service/repository"
	"billing-service/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	store   *memory.Store
	ctx     context.Context
	invoice *models.Invoice
}

func (s *StoreTestSuite) SetupTest() {
	s.store = memory.NewStore()
	s.ctx = context.Background()

	customer := &models.Customer{Name: "Asha", Email: "asha@example.com", PhoneNo: "9876543210"}
	s.Require().NoError(s.store.Customers().Create(s.ctx, customer))

	s.invoice = &models.Invoice{Number: "INV-1", CustomerID: customer.ID, Amount: 5000, Currency: "INR", Status: models.InvoiceStatusDraft}
	s.Require().NoError(s.store.Invoices().Create(s.ctx, s.invoice))
}

func (s *StoreTestSuite) newAttempt(ref string, status models.AttemptStatus) *models.PaymentAttempt {
	return &models.PaymentAttempt{
		InvoiceID:        s.invoice.ID,
		LinkID:           ref,
		GatewayReference: ref,
		Status:           status,
		Amount:           s.invoice.Amount,
		Currency:         s.invoice.Currency,
	}
}

func (s *StoreTestSuite) TestCustomerEmailUnique() {
	err := s.store.Customers().Create(s.ctx, &models.Customer{Name: "Other", Email: "ASHA@example.com"})
	s.ErrorIs(err, repository.ErrDuplicate)
}

func (s *StoreTestSuite) TestDeletedCustomerEmailReusable() {
	c := &models.Customer{Name: "Ravi", Email: "ravi@example.com", PhoneNo: "9876543211"}
	s.Require().NoError(s.store.Customers().Create(s.ctx, c))
	s.Require().NoError(s.store.Customers().Delete(s.ctx, c.ID))

	again := &models.Customer{Name: "Ravi K", Email: "ravi@example.com", PhoneNo: "9876543211"}
	s.NoError(s.store.Customers().Create(s.ctx, again))
}

func (s *StoreTestSuite) TestSecondActiveAttemptRejected() {
	s.Require().NoError(s.store.Attempts().Create(s.ctx, s.newAttempt("cs_1", models.AttemptStatusCreated)))
	err := s.store.Attempts().Create(s.ctx, s.newAttempt("cs_2", models.AttemptStatusCreated))
	s.ErrorIs(err, repository.ErrActiveAttemptExists)
}

func (s *StoreTestSuite) TestTerminalAttemptFreesInvoice() {
	first := s.newAttempt("cs_1", models.AttemptStatusCreated)
	s.Require().NoError(s.store.Attempts().Create(s.ctx, first))

	at := time.Now()
	s.Require().NoError(s.store.Attempts().UpdateStatus(s.ctx, first.ID, models.AttemptStatusFailed, &at))

	_, err := s.store.Attempts().FindActiveByInvoice(s.ctx, s.invoice.ID)
	s.ErrorIs(err, repository.ErrNotFound)

	s.Require().NoError(s.store.Attempts().Create(s.ctx, s.newAttempt("cs_2", models.AttemptStatusCreated)))
	attempts, err := s.store.Attempts().ListByInvoice(s.ctx, s.invoice.ID)
	s.Require().NoError(err)
	s.Len(attempts, 2)

	stored, err := s.store.Attempts().FindByGatewayReference(s.ctx, "cs_1")
	s.Require().NoError(err)
	s.Require().NotNil(stored.LastEventAt)
	s.WithinDuration(at, *stored.LastEventAt, time.Millisecond)
}

func (s *StoreTestSuite) TestWithinTxRollsBack() {
	boom := errors.New("boom")
	err := s.store.WithinTx(s.ctx, func(tx repository.Store) error {
		s.Require().NoError(tx.Attempts().Create(s.ctx, s.newAttempt("cs_1", models.AttemptStatusCreated)))
		s.Require().NoError(tx.Invoices().UpdateStatus(s.ctx, s.invoice.ID, models.InvoiceStatusAwaitingPayment))
		return boom
	})
	s.ErrorIs(err, boom)

	inv, err := s.store.Invoices().Get(s.ctx, s.invoice.ID)
	s.Require().NoError(err)
	s.Equal(models.InvoiceStatusDraft, inv.Status)
	_, err = s.store.Attempts().FindByGatewayReference(s.ctx, "cs_1")
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *StoreTestSuite) TestWithinTxSerializesCheckThenInsert() {
	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.WithinTx(s.ctx, func(tx repository.Store) error {
				if _, err := tx.Attempts().FindActiveByInvoice(s.ctx, s.invoice.ID); err == nil {
					return repository.ErrActiveAttemptExists
				}
				return tx.Attempts().Create(s.ctx, s.newAttempt(uuid.NewString(), models.AttemptStatusCreated))
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, created)
}

func (s *StoreTestSuite) TestGatewayEventDedupe() {
	evt := &models.GatewayEvent{EventID: "evt_1", Type: "checkout.session.completed", Outcome: models.EventOutcomeApplied}
	s.Require().NoError(s.store.GatewayEvents().Create(s.ctx, evt))

	ok, err := s.store.GatewayEvents().Exists(s.ctx, "evt_1")
	s.Require().NoError(err)
	s.True(ok)
	s.ErrorIs(s.store.GatewayEvents().Create(s.ctx, evt), repository.ErrDuplicateEvent)
}

func (s *StoreTestSuite) TestInvoiceListByCustomer() {
	other := uuid.New()
	s.Require().NoError(s.store.Invoices().Create(s.ctx, &models.Invoice{Number: "INV-2", CustomerID: other, Amount: 100, Currency: "INR", Status: models.InvoiceStatusDraft}))

	all, total, err := s.store.Invoices().List(s.ctx, nil, 1, 10)
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(all, 2)

	mine, total, err := s.store.Invoices().List(s.ctx, &other, 1, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal("INV-2", mine[0].Number)

	page, _, err := s.store.Invoices().List(s.ctx, nil, 3, 1)
	s.Require().NoError(err)
	s.Empty(page)
}

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
