package controllers

import (
	"net/http"

	apperrors "billing-service/common/errors"
	"billing-service/middleware"
	"billing-service/models"
	"billing-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type InvoiceController struct {
	invoices *services.InvoiceService
}

func NewInvoiceController(invoices *services.InvoiceService) *InvoiceController {
	return &InvoiceController{invoices: invoices}
}

// CreateInvoice handles POST /api/invoices. New invoices start in draft.
func (ic *InvoiceController) CreateInvoice(c *gin.Context) {
	var req models.CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	inv, err := ic.invoices.CreateInvoice(c.Request.Context(), req, middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invoice": inv})
}

// ListInvoices handles GET /api/invoices?customerId=&page=&limit=.
func (ic *InvoiceController) ListInvoices(c *gin.Context) {
	page, limit := parsePaginationParams(c)

	var customerID *uuid.UUID
	if raw := c.Query("customerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = c.Error(apperrors.ErrInvalidInput.WithDetails(gin.H{"customerId": "must be a valid UUID"}))
			return
		}
		customerID = &id
	}

	invoices, total, err := ic.invoices.ListInvoices(c.Request.Context(), customerID, page, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices": invoices,
		"meta":     paginationMeta(page, limit, total),
	})
}

// GetInvoice handles GET /api/invoices/:id and includes the payment history.
func (ic *InvoiceController) GetInvoice(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	detail, err := ic.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": detail})
}

// CancelInvoice handles POST /api/invoices/:id/cancel.
func (ic *InvoiceController) CancelInvoice(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	inv, err := ic.invoices.CancelInvoice(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}
