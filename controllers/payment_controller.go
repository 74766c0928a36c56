package controllers

import (
	"net/http"

	"billing-service/models"
	"billing-service/services"

	"github.com/gin-gonic/gin"
)

// PaymentController exposes payment links and the payment history of an invoice.
type PaymentController struct {
	payments services.PaymentService
}

func NewPaymentController(payments services.PaymentService) *PaymentController {
	return &PaymentController{payments: payments}
}

// CreatePaymentLink handles POST /api/payments/create-payment-link.
func (pc *PaymentController) CreatePaymentLink(c *gin.Context) {
	var req models.CreatePaymentLinkRequest
	if !bindJSON(c, &req) {
		return
	}

	link, err := pc.payments.RequestPaymentLink(c.Request.Context(), req.InvoiceID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

// GetAttempt handles GET /api/payments/attempts/:id.
func (pc *PaymentController) GetAttempt(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	attempt, err := pc.payments.GetAttempt(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempt": attempt})
}

// ListInvoicePayments handles GET /api/invoices/:id/payments.
func (pc *PaymentController) ListInvoicePayments(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	attempts, err := pc.payments.ListAttempts(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoiceId": id, "payments": attempts})
}
