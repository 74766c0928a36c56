package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"billing-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockSNS implements aws.SNSPublisher.
type mockSNS struct {
	publishedArn string
	publishedMsg []byte
	err          error
}

func (m *mockSNS) Publish(_ context.Context, topicArn string, message []byte) error {
	m.publishedArn = topicArn
	m.publishedMsg = append([]byte(nil), message...)
	return m.err
}

func TestSNSEventPublisher(t *testing.T) {
	sns := &mockSNS{}
	p := NewSNSEventPublisher(sns, "arn:aws:sns:eu-west-2:000000000000:billing-events", zap.NewNop())

	err := p.Publish(context.Background(), models.PaymentEvent{
		Type:      models.PaymentEventLinkCreated,
		InvoiceID: "inv-1",
		AttemptID: "att-1",
		LinkURL:   "https://checkout.example.com/cs_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:eu-west-2:000000000000:billing-events", sns.publishedArn)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(sns.publishedMsg, &out))
	assert.Equal(t, models.PaymentEventLinkCreated, out["type"])
	assert.Equal(t, "inv-1", out["invoice_id"])
	assert.Equal(t, "att-1", out["payment_attempt_id"])

	sns.err = errors.New("throttled")
	assert.Error(t, p.Publish(context.Background(), models.PaymentEvent{Type: models.PaymentEventFailed}))
	assert.NoError(t, NoopEventPublisher{}.Publish(context.Background(), models.PaymentEvent{}))
}
