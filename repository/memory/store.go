// Package memory is a map-backed repository.Store for local runs and tests.
// A transaction holds the store-wide lock and restores a snapshot on error.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"billing-service/models"
	"billing-service/repository"

	"github.com/google/uuid"
)

type data struct {
	customers map[uuid.UUID]models.Customer
	invoices  map[uuid.UUID]models.Invoice
	attempts  map[uuid.UUID]models.PaymentAttempt
	events    map[string]models.GatewayEvent
}

func (d *data) clone() *data {
	cp := &data{
		customers: make(map[uuid.UUID]models.Customer, len(d.customers)),
		invoices:  make(map[uuid.UUID]models.Invoice, len(d.invoices)),
		attempts:  make(map[uuid.UUID]models.PaymentAttempt, len(d.attempts)),
		events:    make(map[string]models.GatewayEvent, len(d.events)),
	}
	for k, v := range d.customers {
		cp.customers[k] = v
	}
	for k, v := range d.invoices {
		cp.invoices[k] = v
	}
	for k, v := range d.attempts {
		cp.attempts[k] = v
	}
	for k, v := range d.events {
		cp.events[k] = v
	}
	return cp
}

type shared struct {
	mu   sync.Mutex
	data *data
}

// Store implements repository.Store.
type Store struct {
	s    *shared
	inTx bool
}

func NewStore() *Store {
	return &Store{s: &shared{data: &data{
		customers: map[uuid.UUID]models.Customer{},
		invoices:  map[uuid.UUID]models.Invoice{},
		attempts:  map[uuid.UUID]models.PaymentAttempt{},
		events:    map[string]models.GatewayEvent{},
	}}}
}

// run executes fn under the store lock unless the caller already holds it.
func (st *Store) run(fn func(d *data) error) error {
	if st.inTx {
		return fn(st.s.data)
	}
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return fn(st.s.data)
}

func (st *Store) Customers() repository.CustomerRepository { return customerRepo{st} }

func (st *Store) Invoices() repository.InvoiceRepository { return invoiceRepo{st} }

func (st *Store) Attempts() repository.PaymentAttemptRepository { return attemptRepo{st} }

func (st *Store) GatewayEvents() repository.GatewayEventRepository { return eventRepo{st} }

func (st *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if st.inTx {
		return fn(st)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	snapshot := st.s.data.clone()
	if err := fn(&Store{s: st.s, inTx: true}); err != nil {
		st.s.data = snapshot
		return err
	}
	return nil
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type customerRepo struct{ st *Store }

func (r customerRepo) Create(_ context.Context, c *models.Customer) error {
	return r.st.run(func(d *data) error {
		for _, existing := range d.customers {
			if strings.EqualFold(existing.Email, c.Email) {
				return repository.ErrDuplicate
			}
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		now := time.Now().UTC()
		c.CreatedAt, c.UpdatedAt = now, now
		d.customers[c.ID] = *c
		return nil
	})
}

func (r customerRepo) Get(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	var out models.Customer
	err := r.st.run(func(d *data) error {
		c, ok := d.customers[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r customerRepo) List(_ context.Context, page, limit int) ([]models.Customer, int64, error) {
	var all []models.Customer
	_ = r.st.run(func(d *data) error {
		for _, c := range d.customers {
			all = append(all, c)
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r customerRepo) Update(_ context.Context, c *models.Customer) error {
	return r.st.run(func(d *data) error {
		existing, ok := d.customers[c.ID]
		if !ok {
			return repository.ErrNotFound
		}
		for id, other := range d.customers {
			if id != c.ID && strings.EqualFold(other.Email, c.Email) {
				return repository.ErrDuplicate
			}
		}
		existing.Name, existing.Email, existing.PhoneNo = c.Name, c.Email, c.PhoneNo
		existing.UpdatedAt = time.Now().UTC()
		d.customers[c.ID] = existing
		*c = existing
		return nil
	})
}

func (r customerRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.st.run(func(d *data) error {
		if _, ok := d.customers[id]; !ok {
			return repository.ErrNotFound
		}
		delete(d.customers, id)
		return nil
	})
}

type invoiceRepo struct{ st *Store }

func (r invoiceRepo) Create(_ context.Context, inv *models.Invoice) error {
	return r.st.run(func(d *data) error {
		for _, existing := range d.invoices {
			if existing.Number == inv.Number {
				return repository.ErrDuplicate
			}
		}
		if inv.ID == uuid.Nil {
			inv.ID = uuid.New()
		}
		now := time.Now().UTC()
		inv.CreatedAt, inv.UpdatedAt = now, now
		if inv.StatusChangedAt.IsZero() {
			inv.StatusChangedAt = now
		}
		d.invoices[inv.ID] = *inv
		return nil
	})
}

func (r invoiceRepo) Get(_ context.Context, id uuid.UUID) (*models.Invoice, error) {
	var out models.Invoice
	err := r.st.run(func(d *data) error {
		inv, ok := d.invoices[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate needs no row lock: a transaction already holds the store lock.
func (r invoiceRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.Get(ctx, id)
}

func (r invoiceRepo) List(_ context.Context, customerID *uuid.UUID, page, limit int) ([]models.Invoice, int64, error) {
	var all []models.Invoice
	_ = r.st.run(func(d *data) error {
		for _, inv := range d.invoices {
			if customerID == nil || inv.CustomerID == *customerID {
				all = append(all, inv)
			}
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r invoiceRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.InvoiceStatus) error {
	return r.st.run(func(d *data) error {
		inv, ok := d.invoices[id]
		if !ok {
			return repository.ErrNotFound
		}
		now := time.Now().UTC()
		inv.Status = status
		inv.StatusChangedAt, inv.UpdatedAt = now, now
		d.invoices[id] = inv
		return nil
	})
}

type attemptRepo struct{ st *Store }

func (r attemptRepo) Create(_ context.Context, a *models.PaymentAttempt) error {
	return r.st.run(func(d *data) error {
		for _, existing := range d.attempts {
			if a.Status.IsActive() && existing.InvoiceID == a.InvoiceID && existing.Status.IsActive() {
				return repository.ErrActiveAttemptExists
			}
			if existing.GatewayReference == a.GatewayReference {
				return repository.ErrDuplicate
			}
		}
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		now := time.Now().UTC()
		a.CreatedAt, a.UpdatedAt = now, now
		d.attempts[a.ID] = *a
		return nil
	})
}

func (r attemptRepo) Get(_ context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	return r.find(func(a models.PaymentAttempt) bool { return a.ID == id })
}

func (r attemptRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.AttemptStatus, eventAt *time.Time) error {
	return r.st.run(func(d *data) error {
		a, ok := d.attempts[id]
		if !ok {
			return repository.ErrNotFound
		}
		a.Status = status
		a.UpdatedAt = time.Now().UTC()
		if eventAt != nil {
			t := eventAt.UTC()
			a.LastEventAt = &t
		}
		d.attempts[id] = a
		return nil
	})
}

func (r attemptRepo) FindActiveByInvoice(_ context.Context, invoiceID uuid.UUID) (*models.PaymentAttempt, error) {
	return r.find(func(a models.PaymentAttempt) bool { return a.InvoiceID == invoiceID && a.Status.IsActive() })
}

func (r attemptRepo) FindByGatewayReference(_ context.Context, ref string) (*models.PaymentAttempt, error) {
	return r.find(func(a models.PaymentAttempt) bool { return a.GatewayReference == ref })
}

func (r attemptRepo) FindByGatewayReferenceForUpdate(ctx context.Context, ref string) (*models.PaymentAttempt, error) {
	return r.FindByGatewayReference(ctx, ref)
}

func (r attemptRepo) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]models.PaymentAttempt, error) {
	var out []models.PaymentAttempt
	_ = r.st.run(func(d *data) error {
		for _, a := range d.attempts {
			if a.InvoiceID == invoiceID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r attemptRepo) find(match func(models.PaymentAttempt) bool) (*models.PaymentAttempt, error) {
	var out *models.PaymentAttempt
	_ = r.st.run(func(d *data) error {
		for _, a := range d.attempts {
			if match(a) {
				out = &a
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

type eventRepo struct{ st *Store }

func (r eventRepo) Exists(_ context.Context, eventID string) (bool, error) {
	var ok bool
	_ = r.st.run(func(d *data) error {
		_, ok = d.events[eventID]
		return nil
	})
	return ok, nil
}

func (r eventRepo) Create(_ context.Context, e *models.GatewayEvent) error {
	return r.st.run(func(d *data) error {
		if _, ok := d.events[e.EventID]; ok {
			return repository.ErrDuplicateEvent
		}
		if e.ReceivedAt.IsZero() {
			e.ReceivedAt = time.Now().UTC()
		}
		d.events[e.EventID] = *e
		return nil
	})
}
