package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basket-order-service/config"
	"basket-order-service/internal/api"
	"basket-order-service/internal/broker"
	"basket-order-service/internal/erp"
	"basket-order-service/internal/redisclient"
	"basket-order-service/internal/service"
	"basket-order-service/internal/util"
	"basket-order-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	// Prices and totals are sent as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting basket order service")

	tp, err := util.InitTracer("basket-order-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	erpClient := erp.NewClient(cfg.ERP, &http.Client{})
	sessions := erp.NewSessionManager(erpClient)
	gateway := erp.NewGateway(erpClient, sessions, cfg.ERP.CallTimeout)
	logger.Info("ERP gateway initialized", zap.String("url", cfg.ERP.URL), zap.String("db", cfg.ERP.DB))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	biz := cfg.Business
	customers := service.NewCustomerResolver(gateway, biz.CustomerConsentField)
	baskets := service.NewBasketResolver(gateway)
	loyalty := service.NewLoyaltyLedger(gateway, customers, eventPublisher, biz.LoyaltySignupBonus)
	fulfillment := service.NewFulfillmentDriver(gateway)
	orderService := service.NewOrderService(gateway, customers, baskets, loyalty, fulfillment, eventPublisher, redisClient,
		service.OrderConfig{
			ConfirmationTemplateID: biz.ConfirmationTemplateID,
			LoyaltyProgramID:       biz.LoyaltyProgramID,
			AccrueLoyalty:          biz.LoyaltyAccrueOnOrder,
			IdempotencyTTL:         biz.IdempotencyTTL,
			LockTTL:                biz.IdempotencyLockTTL,
		})
	subscriptionService := service.NewSubscriptionService(gateway, eventPublisher, service.SubscriptionConfig{
		Resource:      biz.SubscriptionModel,
		ConfirmMethod: biz.SubscriptionConfirmMethod,
		DefaultWeeks:  biz.SubscriptionDefaultWeeks,
	})
	catalogService := service.NewCatalogService(gateway, baskets, redisClient, biz.CatalogCacheTTL)

	if biz.LoyaltyProgramID <= 0 {
		logger.Warn("LOYALTY_PROGRAM_ID not set, loyalty accrual and registration are disabled")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var retryWorker *worker.FulfillmentRetryWorker
	if biz.FulfillmentRetryEnabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		retryWorker = worker.NewFulfillmentRetryWorker(consumer, fulfillment, redisClient)
		go func() {
			if err := retryWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Fulfillment retry worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Orders:           orderService,
		Customers:        customers,
		Subscriptions:    subscriptionService,
		Loyalty:          loyalty,
		Catalog:          catalogService,
		LoyaltyProgramID: biz.LoyaltyProgramID,
	}, map[string]api.ReadinessCheck{
		"redis": redisClient.Ping,
		"erp": func(ctx context.Context) error {
			_, err := sessions.Acquire(ctx)
			return err
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if retryWorker != nil {
		if err := retryWorker.Stop(); err != nil {
			logger.Error("Failed to stop fulfillment retry worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
