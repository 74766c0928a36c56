package controllers

import (
	"errors"
	"io"
	"net/http"

	apperrors "billing-service/common/errors"
	"billing-service/common/logger"
	"billing-service/models"
	"billing-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxWebhookBodyBytes caps a gateway notification body. Larger bodies are
// rejected as malformed.
const MaxWebhookBodyBytes = 256 << 10

// WebhookController receives gateway notifications. It is mounted outside
// the authenticated /api group; the signature is the only credential.
type WebhookController struct {
	payments services.PaymentService
	logger   *zap.Logger
}

func NewWebhookController(payments services.PaymentService, logger *zap.Logger) *WebhookController {
	return &WebhookController{payments: payments, logger: logger}
}

// StripeWebhook handles POST /api/payments/webhook. Every outcome the
// gateway should not redeliver is acknowledged with 200.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.ForContext(c.Request.Context(), wc.logger).Warn("Rejecting oversized webhook body",
				zap.Int64("limit_bytes", tooLarge.Limit),
			)
			_ = c.Error(services.ErrMalformedEvent.WithDetails(map[string]int64{"maxBytes": tooLarge.Limit}))
			return
		}
		_ = c.Error(apperrors.ErrBadRequest.Wrap(err))
		return
	}

	ctx := c.Request.Context()
	outcome, err := wc.payments.HandleGatewayEvent(ctx, payload, c.GetHeader(services.StripeSignatureHeader))
	if err != nil {
		if !errors.Is(err, services.ErrUnknownPaymentAttempt) {
			_ = c.Error(err)
			return
		}
		// Acknowledge so the gateway stops retrying an event we will never match.
		logger.ForContext(ctx, wc.logger).Warn("Acknowledging webhook for unknown payment attempt")
		outcome = models.EventOutcomeUnknown
	}

	c.JSON(http.StatusOK, gin.H{"status": outcome})
}
