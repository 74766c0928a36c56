package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"billing-service/common/logger"
	commonmw "billing-service/common/middleware"
	"billing-service/config"
	"billing-service/controllers"
	"billing-service/database"
	"billing-service/events"
	aws_pkg "billing-service/pkg/aws"
	"billing-service/repository"
	"billing-service/repository/memory"
	"billing-service/routes"
	"billing-service/services"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// --- AWS setup (only when something needs it) ---
	var awsCfg *sdkaws.Config
	if cfg.AWSUseSecrets || cfg.CloudWatchEnabled || cfg.EventBus == config.EventBusSNS {
		loaded, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			panic("failed to load AWS config: " + err.Error())
		}
		awsCfg = &loaded
	}

	// --- Logger ---
	logger.Initialize(cfg.Env)
	if cfg.CloudWatchEnabled {
		cw, err := aws_pkg.NewCloudWatchLogsClient(ctx, *awsCfg, cfg.CloudWatchLogGroup, routes.ServiceName)
		if err != nil {
			logger.Log.Warn("CloudWatch Logs unavailable, logging to stdout only", zap.Error(err))
		} else {
			logger.InitializeWithWriter(cfg.Env, cw)
		}
	}
	log := logger.Log
	defer func() { _ = log.Sync() }()

	if cfg.AWSUseSecrets {
		cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(*awsCfg))
		log.Info("Applied configuration overrides from Secrets Manager")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	// --- Storage ---
	var (
		store repository.Store
		db    *gorm.DB
	)
	switch cfg.DBDriver {
	case config.DBDriverMemory:
		log.Warn("Using in-memory store; data is lost on restart")
		store = memory.NewStore()
	default:
		db, err = database.ConnectPostgres(cfg.PostgresDSN(), log)
		if err != nil {
			log.Fatal("DB connection failed", zap.Error(err))
		}
		store = repository.NewGormStore(db)
	}

	// --- Invoice locking ---
	var (
		locker      services.InvoiceLocker
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("Redis connection failed", zap.Error(err))
		}
		locker = services.NewRedisInvoiceLocker(redisClient, cfg.InvoiceLockTTL, log)
		log.Info("Using Redis invoice lock")
	} else {
		locker = services.NewLocalInvoiceLocker()
		log.Info("Using in-process invoice lock; run a single replica")
	}

	// --- Event publishing ---
	var (
		publisher services.EventPublisher = services.NoopEventPublisher{}
		producer  *events.PaymentEventProducer
	)
	switch cfg.EventBus {
	case config.EventBusSNS:
		publisher = services.NewSNSEventPublisher(aws_pkg.NewSNSClient(*awsCfg), cfg.BillingSNSTopicARN, log)
	case config.EventBusKafka:
		producer = events.NewPaymentEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		publisher = producer
	}

	// --- Metrics (disabled client sends nothing) ---
	var metricsClient *aws_pkg.MetricsClient
	if awsCfg != nil {
		metricsClient = aws_pkg.NewMetricsClient(*awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
	}

	// --- Dependency injection ---
	gateway := services.NewStripeGateway(services.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		BaseURL:       cfg.StripeBaseURL,
		Timeout:       cfg.GatewayTimeout,
		SuccessURL:    cfg.PaymentSuccessURL,
		CancelURL:     cfg.PaymentCancelURL,
	}, log)

	var recorder services.MetricsRecorder
	if metricsClient != nil {
		recorder = metricsClient
	}
	paymentService := services.NewPaymentService(store, gateway, locker, publisher, recorder, services.PaymentServiceConfig{
		LinkTTL:        cfg.PaymentLinkTTL,
		GatewayTimeout: cfg.GatewayTimeout,
	}, log)
	invoiceService := services.NewInvoiceService(store, locker, log)
	customerService := services.NewCustomerService(store.Customers(), log)

	rateLimiter := commonmw.NewRateLimiter(commonmw.PerMinute(cfg.RateLimitPerMinute), cfg.RateLimitBurst, 10*time.Minute)
	go rateLimiter.Run(ctx)

	var httpMetrics commonmw.HTTPMetrics
	if metricsClient != nil {
		httpMetrics = metricsClient
	}
	r := routes.NewRouter(routes.Controllers{
		Payments:  controllers.NewPaymentController(paymentService),
		Webhooks:  controllers.NewWebhookController(paymentService, log),
		Invoices:  controllers.NewInvoiceController(invoiceService),
		Customers: controllers.NewCustomerController(customerService),
	}, routes.Options{
		Logger:         log,
		Metrics:        httpMetrics,
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	// --- HTTP server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Billing Service started", zap.String("port", cfg.Port), zap.String("db_driver", cfg.DBDriver), zap.String("event_bus", cfg.EventBus))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	stop()

	log.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("Kafka producer close error", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Redis close error", zap.Error(err))
		}
	}
	if err := database.Close(db); err != nil {
		log.Error("Database close error", zap.Error(err))
	}

	log.Info("Billing Service stopped gracefully")
}
