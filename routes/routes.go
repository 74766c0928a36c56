package routes

import (
	"net/http"
	"time"

	apperrors "billing-service/common/errors"
	commonmw "billing-service/common/middleware"
	"billing-service/controllers"
	"billing-service/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ServiceName = "billing-service"

// Controllers groups the handlers mounted by NewRouter.
type Controllers struct {
	Payments  *controllers.PaymentController
	Webhooks  *controllers.WebhookController
	Invoices  *controllers.InvoiceController
	Customers *controllers.CustomerController
}

// Options configures the middleware chain.
type Options struct {
	Logger         *zap.Logger
	Metrics        commonmw.HTTPMetrics
	RateLimiter    *commonmw.RateLimiter
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter builds the engine with the global middleware chain and every route.
func NewRouter(ctrl Controllers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(commonmw.RequestID())
	r.Use(commonmw.RequestLogger(opts.Logger))
	r.Use(commonmw.MetricsMiddleware(opts.Metrics, ServiceName))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.RequestTimeout(opts.RequestTimeout))
	r.Use(apperrors.ErrorMiddleware())

	RegisterHealthRoutes(r)

	// Gateway callbacks carry no user identity; the signature authenticates them.
	r.POST("/api/payments/webhook", ctrl.Webhooks.StripeWebhook)

	api := r.Group("/api")
	api.Use(commonmw.CORSMiddleware(opts.AllowedOrigins))
	if opts.RateLimiter != nil {
		api.Use(commonmw.RateLimitMiddleware(opts.RateLimiter))
	}
	api.Use(middleware.AuthMiddleware())

	RegisterPaymentRoutes(api, ctrl.Payments)
	RegisterInvoiceRoutes(api, ctrl.Invoices, ctrl.Payments)
	RegisterCustomerRoutes(api, ctrl.Customers)
	return r
}

func RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "App is running successfully")
	})
	r.GET("/health-check", func(c *gin.Context) {
		c.String(http.StatusOK, "App health check is successful")
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": ServiceName})
	})
}

func RegisterPaymentRoutes(api *gin.RouterGroup, pc *controllers.PaymentController) {
	payments := api.Group("/payments")
	payments.POST("/create-payment-link", pc.CreatePaymentLink)
	payments.GET("/attempts/:id", pc.GetAttempt)
}

func RegisterInvoiceRoutes(api *gin.RouterGroup, ic *controllers.InvoiceController, pc *controllers.PaymentController) {
	invoices := api.Group("/invoices")
	invoices.POST("", ic.CreateInvoice)
	invoices.GET("", ic.ListInvoices)
	invoices.GET("/:id", ic.GetInvoice)
	invoices.POST("/:id/cancel", ic.CancelInvoice)
	invoices.GET("/:id/payments", pc.ListInvoicePayments)
}

func RegisterCustomerRoutes(api *gin.RouterGroup, cc *controllers.CustomerController) {
	users := api.Group("/users")
	users.POST("", cc.CreateCustomer)
	users.GET("", cc.ListCustomers)
	users.GET("/:id", cc.GetCustomer)
	users.PUT("/:id", cc.UpdateCustomer)
	users.DELETE("/:id", cc.DeleteCustomer)
}
