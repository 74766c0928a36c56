package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"billing-service/models"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API host, e.g. for stripe-mock.
	BaseURL    string
	Timeout    time.Duration
	SuccessURL string
	CancelURL  string
}

// StripeGateway creates Checkout Sessions as payment links.
type StripeGateway struct {
	sessions      session.Client
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.Sugar(),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &StripeGateway{
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

func (g *StripeGateway) CreateLink(ctx context.Context, req LinkRequest) (*PaymentLink, error) {
	name := "Invoice " + req.InvoiceNumber
	if req.Description != "" {
		name = fmt.Sprintf("%s - %s", name, req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.AttemptID.String()),
	}
	if req.Contact.Email != "" {
		params.CustomerEmail = stripe.String(req.Contact.Email)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.AddMetadata("invoice_id", req.InvoiceID.String())
	params.AddMetadata("invoice_number", req.InvoiceNumber)
	params.AddMetadata("payment_attempt_id", req.AttemptID.String())
	params.SetIdempotencyKey(req.AttemptID.String())
	params.Context = ctx

	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	link := &PaymentLink{
		LinkID:           sess.ID,
		LinkURL:          sess.URL,
		GatewayReference: sess.ID,
	}
	if sess.ExpiresAt > 0 {
		t := time.Unix(sess.ExpiresAt, 0).UTC()
		link.ExpiresAt = &t
	}
	return link, nil
}

func (g *StripeGateway) ExpireLink(ctx context.Context, linkID string) error {
	_, err := g.sessions.Expire(linkID, &stripe.CheckoutSessionExpireParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return classifyStripeError(err)
	}
	return nil
}

func (g *StripeGateway) VerifySignature(payload []byte, signatureHeader string) bool {
	return VerifyStripeSignature(payload, signatureHeader, g.webhookSecret)
}

// VerifyStripeSignature checks a Stripe-Signature header (t=<unix>,v1=<hex>)
// against an HMAC-SHA256 of "<t>.<payload>". Comparison is constant time and
// the timestamp is not checked against the clock.
func VerifyStripeSignature(payload []byte, signatureHeader, secret string) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}
	return webhook.ValidatePayloadIgnoringTolerance(payload, signatureHeader, secret) == nil
}

const (
	eventCheckoutCompleted      = "checkout.session.completed"
	eventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	eventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	eventCheckoutExpired        = "checkout.session.expired"
)

func (g *StripeGateway) ParseEvent(payload []byte) (*GatewayEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrMalformedEvent.Wrap(err)
	}
	if event.ID == "" || event.Type == "" || event.Created == 0 {
		return nil, ErrMalformedEvent.Wrap(errors.New("event id, type and created are required"))
	}

	out := &GatewayEvent{
		EventID:    event.ID,
		Type:       string(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case eventCheckoutCompleted, eventCheckoutAsyncSucceeded, eventCheckoutAsyncFailed, eventCheckoutExpired:
	default:
		return out, nil
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, ErrMalformedEvent.Wrap(errors.New("event has no data object"))
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, ErrMalformedEvent.Wrap(err)
	}
	if sess.ID == "" {
		return nil, ErrMalformedEvent.Wrap(errors.New("checkout session has no id"))
	}

	out.GatewayReference = sess.ID
	out.Status = sessionEventStatus(string(event.Type), sess.PaymentStatus)
	return out, nil
}

func sessionEventStatus(eventType string, paymentStatus stripe.CheckoutSessionPaymentStatus) models.AttemptStatus {
	switch eventType {
	case eventCheckoutCompleted:
		// Delayed payment methods complete the session before the money moves.
		if paymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return models.AttemptStatusPending
		}
		return models.AttemptStatusSucceeded
	case eventCheckoutAsyncSucceeded:
		return models.AttemptStatusSucceeded
	case eventCheckoutAsyncFailed:
		return models.AttemptStatusFailed
	case eventCheckoutExpired:
		return models.AttemptStatusExpired
	}
	return ""
}

// classifyStripeError splits gateway failures into retryable and rejected.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		status := stripeErr.HTTPStatusCode
		if status == 0 || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return ErrGatewayUnavailable.Wrap(err)
		}
		return ErrGatewayRejected.Wrap(err).WithDetails(map[string]string{
			"reason": stripeErr.Msg,
			"code":   string(stripeErr.Code),
		})
	}
	return ErrGatewayUnavailable.Wrap(err)
}
