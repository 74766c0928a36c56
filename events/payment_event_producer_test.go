package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"billing-service/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPaymentEventProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &PaymentEventProducer{writer: w, topic: "billing.payments", logger: zap.NewNop()}

	event := models.PaymentEvent{
		Type:      models.PaymentEventSucceeded,
		InvoiceID: "0b6f7c1e-0000-4000-8000-000000000001",
		AttemptID: "0b6f7c1e-0000-4000-8000-000000000002",
		Status:    string(models.AttemptStatusSucceeded),
		Amount:    5000,
		Currency:  "INR",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, event.InvoiceID, string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, models.PaymentEventSucceeded, string(msg.Headers[0].Value))

	var decoded models.PaymentEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.AttemptID, decoded.AttemptID)
	assert.Equal(t, int64(5000), decoded.Amount)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPaymentEventProducer_WriteError(t *testing.T) {
	p := &PaymentEventProducer{writer: &recordingWriter{err: errors.New("broker down")}, topic: "billing.payments", logger: zap.NewNop()}
	err := p.Publish(context.Background(), models.PaymentEvent{Type: models.PaymentEventFailed, InvoiceID: "inv"})
	assert.ErrorContains(t, err, "broker down")
}
