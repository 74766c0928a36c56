package services

import (
	"context"
	"errors"
	"time"

	apperrors "billing-service/common/errors"
	"billing-service/common/logger"
	"billing-service/models"
	aws_pkg "billing-service/pkg/aws"
	"billing-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentService interface {
	RequestPaymentLink(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentLinkResponse, error)
	// HandleGatewayEvent verifies and applies one webhook delivery. payload must
	// be the raw request body exactly as received.
	HandleGatewayEvent(ctx context.Context, payload []byte, signature string) (models.EventOutcome, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error)
	ListAttempts(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentAttempt, error)
}

type PaymentServiceConfig struct {
	LinkTTL        time.Duration
	GatewayTimeout time.Duration
	// LockWait bounds how long a request queues behind another one for the
	// same invoice.
	LockWait time.Duration
}

type paymentServiceImpl struct {
	store     repository.Store
	gateway   PaymentGateway
	locker    InvoiceLocker
	publisher EventPublisher
	metrics   MetricsRecorder
	cfg       PaymentServiceConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewPaymentService(
	store repository.Store,
	gateway PaymentGateway,
	locker InvoiceLocker,
	publisher EventPublisher,
	metrics MetricsRecorder,
	cfg PaymentServiceConfig,
	logger *zap.Logger,
) PaymentService {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 23 * time.Hour
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = cfg.GatewayTimeout + 5*time.Second
	}
	if publisher == nil {
		publisher = NoopEventPublisher{}
	}
	return &paymentServiceImpl{
		store:     store,
		gateway:   gateway,
		locker:    locker,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *paymentServiceImpl) RequestPaymentLink(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentLinkResponse, error) {
	log := logger.ForContext(ctx, s.logger).With(zap.String("invoice_id", invoiceID.String()))

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	unlock, err := s.locker.Lock(lockCtx, invoiceID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			log.Warn("Timed out waiting for invoice lock")
			return nil, ErrPaymentAlreadyInProgress
		}
		log.Error("Failed to acquire invoice lock", zap.Error(err))
		return nil, apperrors.ErrServiceUnavailable.Wrap(err)
	}
	defer unlock()

	inv, err := s.store.Invoices().Get(ctx, invoiceID)
	if err != nil {
		return nil, storageError(err, ErrInvoiceNotFound)
	}
	if err := checkPayable(inv); err != nil {
		return nil, err
	}
	if active, err := s.store.Attempts().FindActiveByInvoice(ctx, invoiceID); err == nil {
		if !active.Lapsed(s.now()) {
			return nil, inProgress(active)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageError(err, nil)
	}

	attemptID := uuid.New()
	expiresAt := s.now().Add(s.cfg.LinkTTL).UTC()

	gwCtx, gwCancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	link, err := s.gateway.CreateLink(gwCtx, LinkRequest{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		AttemptID:     attemptID,
		Amount:        inv.Amount,
		Currency:      inv.Currency,
		Description:   inv.Description,
		Contact:       s.contactFor(ctx, inv, log),
		ExpiresAt:     expiresAt,
	})
	gwCancel()
	if err != nil {
		s.count(ctx, aws_pkg.MetricGatewayErrors)
		log.Warn("Gateway failed to create payment link", zap.Error(err))
		var appErr *apperrors.Error
		if !errors.As(err, &appErr) {
			return nil, ErrGatewayUnavailable.Wrap(err)
		}
		return nil, err
	}

	attempt := &models.PaymentAttempt{
		ID:               attemptID,
		InvoiceID:        inv.ID,
		LinkID:           link.LinkID,
		LinkURL:          link.LinkURL,
		GatewayReference: link.GatewayReference,
		Status:           models.AttemptStatusCreated,
		Amount:           inv.Amount,
		Currency:         inv.Currency,
		ExpiresAt:        &expiresAt,
	}
	if link.ExpiresAt != nil {
		attempt.ExpiresAt = link.ExpiresAt
	}

	var lapsed *models.PaymentAttempt
	var lapsedInv *models.Invoice
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Invoices().GetForUpdate(ctx, invoiceID)
		if err != nil {
			return storageError(err, ErrInvoiceNotFound)
		}
		if err := checkPayable(locked); err != nil {
			return err
		}
		if active, err := tx.Attempts().FindActiveByInvoice(ctx, invoiceID); err == nil {
			if !active.Lapsed(s.now()) {
				return inProgress(active)
			}
			if lapsedInv, err = expireLapsed(ctx, tx, active, locked); err != nil {
				return err
			}
			lapsed = active
		} else if !errors.Is(err, repository.ErrNotFound) {
			return storageError(err, nil)
		}
		if err := tx.Attempts().Create(ctx, attempt); err != nil {
			if errors.Is(err, repository.ErrActiveAttemptExists) {
				return ErrPaymentAlreadyInProgress
			}
			return storageError(err, nil)
		}
		if err := tx.Invoices().UpdateStatus(ctx, invoiceID, models.InvoiceStatusAwaitingPayment); err != nil {
			return storageError(err, nil)
		}
		inv = locked
		inv.Status = models.InvoiceStatusAwaitingPayment
		return nil
	})
	if err != nil {
		log.Warn("Discarding payment link after failed commit",
			zap.String("link_id", link.LinkID),
			zap.Error(err),
		)
		s.expireLink(ctx, link.LinkID, log)
		return nil, err
	}

	if lapsed != nil {
		log.Info("Expired lapsed payment attempt",
			zap.String("payment_attempt_id", lapsed.ID.String()),
			zap.String("link_id", lapsed.LinkID),
		)
		s.recordOutcome(ctx, lapsed.Status)
		s.publish(ctx, paymentEvent(models.PaymentEventExpired, lapsed, lapsedInv))
		s.expireLink(ctx, lapsed.LinkID, log)
	}

	log.Info("Payment link created",
		zap.String("payment_attempt_id", attempt.ID.String()),
		zap.String("gateway_reference", attempt.GatewayReference),
	)
	s.count(ctx, aws_pkg.MetricPaymentLinksCreated)
	s.publish(ctx, paymentEvent(models.PaymentEventLinkCreated, attempt, inv))

	return &models.PaymentLinkResponse{
		PaymentAttemptID: attempt.ID,
		InvoiceID:        inv.ID,
		LinkURL:          attempt.LinkURL,
		Status:           string(attempt.Status),
		ExpiresAt:        attempt.ExpiresAt,
	}, nil
}

// contactFor is best effort; a link without prefilled contact details still works.
func (s *paymentServiceImpl) contactFor(ctx context.Context, inv *models.Invoice, log *zap.Logger) CustomerContact {
	customer, err := s.store.Customers().Get(ctx, inv.CustomerID)
	if err != nil {
		log.Warn("Creating payment link without customer contact",
			zap.String("customer_id", inv.CustomerID.String()),
			zap.Error(err),
		)
		return CustomerContact{}
	}
	return CustomerContact{Name: customer.Name, Email: customer.Email, Phone: customer.PhoneNo}
}

// expireLink is best effort; the gateway also expires links on its own clock.
func (s *paymentServiceImpl) expireLink(ctx context.Context, linkID string, log *zap.Logger) {
	expCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GatewayTimeout)
	defer cancel()
	if err := s.gateway.ExpireLink(expCtx, linkID); err != nil {
		log.Error("Failed to expire payment link at gateway", zap.String("link_id", linkID), zap.Error(err))
	}
}

type reconcileResult struct {
	outcome models.EventOutcome
	attempt *models.PaymentAttempt
	// invoice is set only when the invoice status changed.
	invoice *models.Invoice
}

func (s *paymentServiceImpl) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) (models.EventOutcome, error) {
	log := logger.ForContext(ctx, s.logger)

	if !s.gateway.VerifySignature(payload, signature) {
		s.count(ctx, aws_pkg.MetricWebhookRejected)
		log.Warn("Gateway webhook signature verification failed", zap.Int("payload_bytes", len(payload)))
		return "", ErrInvalidSignature
	}

	evt, err := s.gateway.ParseEvent(payload)
	if err != nil {
		s.count(ctx, aws_pkg.MetricWebhookRejected)
		log.Warn("Malformed gateway webhook event", zap.Error(err))
		return "", err
	}
	log = log.With(
		zap.String("event_id", evt.EventID),
		zap.String("event_type", evt.Type),
	)
	if !evt.Actionable() {
		log.Info("Ignoring unhandled gateway event type")
		return models.EventOutcomeIgnored, nil
	}
	log = log.With(zap.String("gateway_reference", evt.GatewayReference))

	var res reconcileResult
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		attempt, err := tx.Attempts().FindByGatewayReferenceForUpdate(ctx, evt.GatewayReference)
		if err != nil {
			return storageError(err, ErrUnknownPaymentAttempt)
		}
		seen, err := tx.GatewayEvents().Exists(ctx, evt.EventID)
		if err != nil {
			return storageError(err, nil)
		}
		if seen {
			res = reconcileResult{outcome: models.EventOutcomeDuplicate, attempt: attempt}
			return nil
		}

		r, err := s.applyEvent(ctx, tx, attempt, evt, log)
		if err != nil {
			return err
		}
		if err := tx.GatewayEvents().Create(ctx, &models.GatewayEvent{
			EventID:          evt.EventID,
			Type:             evt.Type,
			GatewayReference: evt.GatewayReference,
			Status:           evt.Status,
			OccurredAt:       evt.OccurredAt,
			Outcome:          r.outcome,
			Payload:          string(payload),
		}); err != nil {
			if errors.Is(err, repository.ErrDuplicateEvent) {
				return err
			}
			return storageError(err, nil)
		}
		res = r
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEvent):
			res = reconcileResult{outcome: models.EventOutcomeDuplicate}
		case errors.Is(err, ErrUnknownPaymentAttempt):
			log.Warn("Gateway event references unknown payment attempt")
			return models.EventOutcomeUnknown, err
		default:
			log.Error("Failed to apply gateway event", zap.Error(err))
			var appErr *apperrors.Error
			if errors.As(err, &appErr) {
				return "", err
			}
			return "", apperrors.ErrDatabaseTransaction.Wrap(err)
		}
	}

	switch res.outcome {
	case models.EventOutcomeApplied:
		log.Info("Gateway event applied",
			zap.String("payment_attempt_id", res.attempt.ID.String()),
			zap.String("status", string(res.attempt.Status)),
		)
		if res.attempt.Status.IsTerminal() {
			s.recordOutcome(ctx, res.attempt.Status)
			s.publish(ctx, paymentEvent(models.PaymentEventTypeFor(res.attempt.Status), res.attempt, res.invoice))
		}
	case models.EventOutcomeDuplicate:
		s.count(ctx, aws_pkg.MetricWebhookDuplicates)
		log.Info("Duplicate gateway event acknowledged")
	case models.EventOutcomeStale:
		log.Info("Out-of-order gateway event discarded")
	}
	return res.outcome, nil
}

// applyEvent moves the attempt (and, for terminal outcomes, its invoice) to
// the status carried by evt. It never moves an attempt out of a terminal state
// and never applies an event older than the last one applied.
func (s *paymentServiceImpl) applyEvent(ctx context.Context, tx repository.Store, attempt *models.PaymentAttempt, evt *GatewayEvent, log *zap.Logger) (reconcileResult, error) {
	res := reconcileResult{attempt: attempt}

	switch {
	case attempt.Status.IsTerminal(), attempt.Status == evt.Status:
		res.outcome = models.EventOutcomeDuplicate
		return res, nil
	case attempt.LastEventAt != nil && evt.OccurredAt.Before(*attempt.LastEventAt):
		res.outcome = models.EventOutcomeStale
		return res, nil
	case !attempt.Status.CanTransitionTo(evt.Status):
		log.Warn("Gateway event carries an invalid attempt transition",
			zap.String("from", string(attempt.Status)),
			zap.String("to", string(evt.Status)),
		)
		res.outcome = models.EventOutcomeStale
		return res, nil
	}

	occurredAt := evt.OccurredAt
	if err := tx.Attempts().UpdateStatus(ctx, attempt.ID, evt.Status, &occurredAt); err != nil {
		return res, storageError(err, nil)
	}
	attempt.Status = evt.Status
	attempt.LastEventAt = &occurredAt
	res.outcome = models.EventOutcomeApplied

	target, ok := models.InvoiceStatusFor(evt.Status)
	if !ok {
		return res, nil
	}
	inv, err := tx.Invoices().GetForUpdate(ctx, attempt.InvoiceID)
	if err != nil {
		return res, storageError(err, nil)
	}
	if !inv.Status.CanTransitionTo(target) {
		log.Error("Invoice cannot take payment outcome",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_status", string(inv.Status)),
			zap.String("attempt_status", string(evt.Status)),
		)
		return res, nil
	}
	if err := tx.Invoices().UpdateStatus(ctx, inv.ID, target); err != nil {
		return res, storageError(err, nil)
	}
	inv.Status = target
	res.invoice = inv
	return res, nil
}

func (s *paymentServiceImpl) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	attempt, err := s.store.Attempts().Get(ctx, attemptID)
	if err != nil {
		return nil, storageError(err, ErrAttemptNotFound)
	}
	return attempt, nil
}

func (s *paymentServiceImpl) ListAttempts(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentAttempt, error) {
	if _, err := s.store.Invoices().Get(ctx, invoiceID); err != nil {
		return nil, storageError(err, ErrInvoiceNotFound)
	}
	attempts, err := s.store.Attempts().ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, storageError(err, nil)
	}
	return attempts, nil
}

func (s *paymentServiceImpl) recordOutcome(ctx context.Context, status models.AttemptStatus) {
	switch status {
	case models.AttemptStatusSucceeded:
		s.count(ctx, aws_pkg.MetricPaymentSucceeded)
	case models.AttemptStatusFailed:
		s.count(ctx, aws_pkg.MetricPaymentFailed)
	case models.AttemptStatusExpired:
		s.count(ctx, aws_pkg.MetricPaymentExpired)
	}
}

func (s *paymentServiceImpl) count(ctx context.Context, metric string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(context.WithoutCancel(ctx), metric, nil); err != nil {
		s.logger.Debug("Failed to record metric", zap.String("metric", metric), zap.Error(err))
	}
}

// publish runs after commit and detached from the request so a client
// disconnect does not drop the event.
func (s *paymentServiceImpl) publish(ctx context.Context, event models.PaymentEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		logger.ForContext(ctx, s.logger).Error("Failed to publish payment event",
			zap.String("event_type", event.Type),
			zap.String("invoice_id", event.InvoiceID),
			zap.Error(err),
		)
	}
}

func paymentEvent(eventType string, attempt *models.PaymentAttempt, inv *models.Invoice) models.PaymentEvent {
	event := models.PaymentEvent{
		Type:      eventType,
		InvoiceID: attempt.InvoiceID.String(),
		AttemptID: attempt.ID.String(),
		Status:    string(attempt.Status),
		LinkURL:   attempt.LinkURL,
		Amount:    attempt.Amount,
		Currency:  attempt.Currency,
		Timestamp: time.Now().UTC(),
	}
	if inv != nil {
		event.InvoiceNumber = inv.Number
		event.CustomerID = inv.CustomerID.String()
		event.InvoiceStatus = string(inv.Status)
	}
	return event
}
