package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron"

	"github.com/wms-platform/fulfillment-engine/internal/api/handlers"
	"github.com/wms-platform/fulfillment-engine/internal/application"
	"github.com/wms-platform/fulfillment-engine/internal/che"
	"github.com/wms-platform/fulfillment-engine/internal/config"
	"github.com/wms-platform/fulfillment-engine/internal/domain"
	mongoRepo "github.com/wms-platform/fulfillment-engine/internal/infrastructure/mongodb"
	"github.com/wms-platform/fulfillment-engine/pkg/kafka"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/metrics"
	"github.com/wms-platform/fulfillment-engine/pkg/middleware"
)

const serviceName = "fulfillment-engine"

func main() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, appDependencies{}, signalCh); err != nil {
		os.Exit(1)
	}
}

type eventProducer interface {
	application.EventPublisher
	Close() error
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type appDependencies struct {
	newMetrics    func(cfg *metrics.Config) *metrics.Metrics
	newProducer   func(cfg *kafka.Config, logger *logging.Logger) eventProducer
	newHTTPServer func(addr string, handler http.Handler) httpServer
}

func (d appDependencies) withDefaults() appDependencies {
	if d.newMetrics == nil {
		d.newMetrics = metrics.New
	}
	if d.newProducer == nil {
		d.newProducer = func(cfg *kafka.Config, logger *logging.Logger) eventProducer {
			return kafka.NewCircuitBreakerProducer(kafka.NewProducer(cfg), logger.Logger)
		}
	}
	if d.newHTTPServer == nil {
		d.newHTTPServer = func(addr string, handler http.Handler) httpServer {
			return &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
		}
	}
	return d
}

func run(ctx context.Context, cfg *config.Config, deps appDependencies, signalCh <-chan os.Signal) error {
	deps = deps.withDefaults()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(cfg.LogLevel)
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting fulfillment-engine API", "facility", cfg.Facility.FacilityID)

	m := deps.newMetrics(metrics.DefaultConfig(serviceName))

	client, err := mongoRepo.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	defer client.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	kafkaConfig := &kafka.Config{
		Brokers:      cfg.Kafka.Brokers,
		ClientID:     cfg.Kafka.ClientID,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		RequiredAcks: cfg.Kafka.RequiredAcks,
	}
	producer := deps.newProducer(kafkaConfig, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

	db := client.Database()
	facilityDefaults := &domain.Facility{
		FacilityID:                cfg.Facility.FacilityID,
		RequireBadgeAuth:          cfg.Facility.RequireBadgeAuth,
		DropDoneCountOnPathChange: cfg.Facility.DropDoneCountOnPathChange,
		PalletizerPrefixLen:       cfg.Facility.PalletizerPrefixLen,
	}

	orders := mongoRepo.NewOrderRepository(db)
	instructions := mongoRepo.NewWorkInstructionRepository(db)
	facilities := mongoRepo.NewFacilityRepository(db, facilityDefaults)
	workers := mongoRepo.NewWorkerRepository(db)
	inventory := mongoRepo.NewInventoryRepository(db)
	transactor := mongoRepo.NewTransactor(client)

	fulfillmentService := application.NewFulfillmentService(
		orders, instructions, facilities, workers, inventory, transactor, producer, logger, m)
	importService := application.NewImportService(
		orders, facilities, inventory, transactor, producer, logger, m, cfg.Facility.FacilityID)
	purgeService := application.NewPurgeService(
		orders, instructions, transactor, producer, logger, m, cfg.Purge.Retention)

	dispatcher := application.NewKafkaDispatcher(producer, logger)
	registry := che.NewRegistry(fulfillmentService, dispatcher, logger, m)
	defer registry.CloseAll()

	purgeCron := cron.New()
	if err := purgeCron.AddFunc(cfg.Purge.Schedule, func() {
		if _, err := purgeService.Purge(context.Background()); err != nil {
			logger.WithError(err).Error("Scheduled purge failed")
		}
	}); err != nil {
		logger.WithError(err).Error("Invalid purge schedule", "schedule", cfg.Purge.Schedule)
		return fmt.Errorf("invalid purge schedule: %w", err)
	}
	purgeCron.Start()
	defer purgeCron.Stop()
	logger.Info("Purge schedule registered", "schedule", cfg.Purge.Schedule)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.NoRoute(middleware.NoRoute())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return client.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	apiV1 := router.Group("/api/v1")

	deviceHandlers := handlers.NewDeviceHandlers(registry, logger, m)
	deviceHandlers.RegisterRoutes(apiV1)

	importHandlers := handlers.NewImportHandlers(importService, logger)
	importHandlers.RegisterRoutes(apiV1)

	adminHandlers := handlers.NewAdminHandlers(fulfillmentService, purgeService, logger)
	adminHandlers.RegisterRoutes(apiV1)

	srv := deps.newHTTPServer(cfg.ServerAddr, router)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	if signalCh == nil {
		signalCh = make(chan os.Signal, 1)
	}
	select {
	case <-signalCh:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
