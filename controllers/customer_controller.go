package controllers

import (
	"net/http"

	"billing-service/models"
	"billing-service/services"

	"github.com/gin-gonic/gin"
)

// CustomerController serves /api/users.
type CustomerController struct {
	customers *services.CustomerService
}

func NewCustomerController(customers *services.CustomerService) *CustomerController {
	return &CustomerController{customers: customers}
}

func (cc *CustomerController) CreateCustomer(c *gin.Context) {
	var req models.CustomerRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := cc.customers.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": customer})
}

func (cc *CustomerController) ListCustomers(c *gin.Context) {
	page, limit := parsePaginationParams(c)

	customers, total, err := cc.customers.List(c.Request.Context(), page, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": customers,
		"meta":  paginationMeta(page, limit, total),
	})
}

func (cc *CustomerController) GetCustomer(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	customer, err := cc.customers.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": customer})
}

func (cc *CustomerController) UpdateCustomer(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.CustomerRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := cc.customers.Update(c.Request.Context(), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": customer})
}

func (cc *CustomerController) DeleteCustomer(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := cc.customers.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}
