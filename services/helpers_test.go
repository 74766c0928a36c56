package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"billing-service/models"
	"billing-service/repository/memory"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixtureSecret = "whsec_fixture"

// fakeGateway creates links in memory and parses webhooks with the real
// Stripe parser.
type fakeGateway struct {
	*StripeGateway

	mu       sync.Mutex
	calls    int
	expired  []string
	err      error
	delay    time.Duration
	onCreate func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		StripeGateway: NewStripeGateway(StripeConfig{WebhookSecret: fixtureSecret}, zap.NewNop()),
	}
}

func (g *fakeGateway) CreateLink(ctx context.Context, req LinkRequest) (*PaymentLink, error) {
	g.mu.Lock()
	g.calls++
	n, err, delay, hook := g.calls, g.err, g.delay, g.onCreate
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrGatewayUnavailable.Wrap(ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook()
	}
	ref := fmt.Sprintf("cs_test_%d", n)
	return &PaymentLink{
		LinkID:           ref,
		LinkURL:          "https://checkout.example.com/" + ref,
		GatewayReference: ref,
	}, nil
}

func (g *fakeGateway) ExpireLink(_ context.Context, linkID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, linkID)
	return nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (p *capturePublisher) Publish(_ context.Context, event models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordCount(_ context.Context, metricName string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[metricName]++
	return nil
}

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type paymentFixture struct {
	store     *memory.Store
	gateway   *fakeGateway
	publisher *capturePublisher
	metrics   *countingMetrics
	locker    *LocalInvoiceLocker
	svc       *paymentServiceImpl
	customer  *models.Customer
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		store:     memory.NewStore(),
		gateway:   newFakeGateway(),
		publisher: &capturePublisher{},
		metrics:   &countingMetrics{},
		locker:    NewLocalInvoiceLocker(),
	}
	f.svc = NewPaymentService(f.store, f.gateway, f.locker, f.publisher, f.metrics, PaymentServiceConfig{
		LinkTTL:        time.Hour,
		GatewayTimeout: 200 * time.Millisecond,
		LockWait:       2 * time.Second,
	}, zap.NewNop()).(*paymentServiceImpl)

	f.customer = &models.Customer{Name: "Asha Rao", Email: "asha@example.com", PhoneNo: "9876543210"}
	require.NoError(t, f.store.Customers().Create(context.Background(), f.customer))
	return f
}

func (f *paymentFixture) newInvoice(t *testing.T, status models.InvoiceStatus) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		Number:     fmt.Sprintf("INV-%d", time.Now().UnixNano()),
		CustomerID: f.customer.ID,
		Amount:     5000,
		Currency:   "INR",
		Status:     status,
	}
	require.NoError(t, f.store.Invoices().Create(context.Background(), inv))
	return inv
}

func (f *paymentFixture) deliver(eventID, eventType, ref, paymentStatus string, at time.Time) (models.EventOutcome, error) {
	payload := webhookPayload(eventID, eventType, ref, paymentStatus, at)
	return f.svc.HandleGatewayEvent(context.Background(), payload, signPayload(payload, at))
}

func webhookPayload(eventID, eventType, ref, paymentStatus string, at time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":{"id":%q,"object":"checkout.session","payment_status":%q}}}`,
		eventID, eventType, at.Unix(), ref, paymentStatus,
	))
}

func signPayload(payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(fixtureSecret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
