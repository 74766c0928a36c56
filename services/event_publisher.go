package services

import (
	"context"
	"encoding/json"
	"fmt"

	"billing-service/models"
	aws_pkg "billing-service/pkg/aws"

	"go.uber.org/zap"
)

// EventPublisher announces committed payment lifecycle changes. Publishing is
// best effort: the ledger is the source of truth.
type EventPublisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
}

// MetricsRecorder is the subset of the CloudWatch client the services use.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// SNSEventPublisher publishes payment events as JSON to an SNS topic.
type SNSEventPublisher struct {
	sns      aws_pkg.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

func NewSNSEventPublisher(sns aws_pkg.SNSPublisher, topicArn string, logger *zap.Logger) *SNSEventPublisher {
	return &SNSEventPublisher{sns: sns, topicArn: topicArn, logger: logger}
}

func (p *SNSEventPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	if err := p.sns.Publish(ctx, p.topicArn, payload); err != nil {
		return err
	}
	p.logger.Info("Payment event published to SNS",
		zap.String("event_type", event.Type),
		zap.String("invoice_id", event.InvoiceID),
	)
	return nil
}

// NoopEventPublisher drops every event.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, models.PaymentEvent) error { return nil }
