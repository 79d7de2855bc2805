package main

import (
	"log"
	"net/http"

	_ "counselpay/docs" // swagger docs

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"counselpay/internal/cache"
	"counselpay/internal/config"
	"counselpay/internal/db"
	"counselpay/internal/directory"
	"counselpay/internal/gateway"
	"counselpay/internal/handler"
	"counselpay/internal/model"
	"counselpay/internal/notification"
	"counselpay/internal/repository"
	"counselpay/internal/router"
	"counselpay/internal/service"
)

// @title Counseling Center Payment API
// @version 1.0
// @description Payment lifecycle service: creation, provider webhooks, cancellation, refunds, expiry and statistics.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	e := echo.New()
	e.Use(middleware.RequestID())

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	if err := gormDB.AutoMigrate(
		&model.Payment{},
		&model.PaymentEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	// Repositories
	paymentRepo := repository.NewPaymentRepository(gormDB)
	eventRepo := repository.NewPaymentEventRepository(gormDB)

	// Provider gateways, one per payment method
	gateways := gateway.NewRegistry()
	gateways.Register(model.MethodCard, gateway.NewCardGateway(gateway.CardConfig{
		BaseURL:       cfg.TossBaseURL,
		SecretKey:     cfg.TossSecretKey,
		WebhookSecret: cfg.WebhookSecrets["TOSS"],
		Timeout:       cfg.ProviderTimeout,
	}))
	gateways.Register(model.MethodVirtualAccount, gateway.NewVirtualAccountGateway(gateway.VirtualAccountConfig{
		BaseURL:       cfg.TossBaseURL,
		SecretKey:     cfg.TossSecretKey,
		WebhookSecret: cfg.WebhookSecrets["TOSS"],
		Timeout:       cfg.ProviderTimeout,
	}))
	gateways.Register(model.MethodBankTransfer, gateway.NewBankTransferGateway(gateway.BankTransferConfig{
		BaseURL:       cfg.IamportBaseURL,
		APIKey:        cfg.IamportAPIKey,
		WebhookSecret: cfg.WebhookSecrets["IAMPORT"],
		Timeout:       cfg.ProviderTimeout,
	}))
	gateways.Register(model.MethodMobile, gateway.NewMobileGateway(gateway.MobileConfig{
		BaseURL:       cfg.IamportBaseURL,
		APIKey:        cfg.IamportAPIKey,
		WebhookSecret: cfg.WebhookSecrets["KAKAOPAY"],
		Timeout:       cfg.ProviderTimeout,
	}))

	// External collaborators
	dir := directory.NewClient(cfg.DirectoryBaseURL)
	notifier := notification.NewHTTPNotifier(cfg.NotificationBaseURL)
	ledger := service.NewWebhookLedger(cacheClient)

	// Services
	paymentService := service.NewPaymentService(
		paymentRepo,
		eventRepo,
		gateways,
		ledger,
		dir,
		notifier,
		cfg.DefaultTimeoutMinutes,
		cfg.SweepBatchSize,
	)
	statsService := service.NewStatisticsService(paymentRepo, cacheClient)

	// Background sweeper
	sweeper := service.NewSweeper(paymentService, cfg.SweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("sweeper start: %v", err)
	}
	defer sweeper.Stop()

	// Handlers
	paymentHandler := handler.NewPaymentHandler(paymentService, sweeper)
	statisticsHandler := handler.NewStatisticsHandler(statsService)

	router.Register(e, cfg, paymentHandler, statisticsHandler)

	addr := ":" + cfg.ServerPort
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server start: %v", err)
	}
}
