package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"splitsnap/internal/api"
	"splitsnap/internal/api/handlers"
	"splitsnap/internal/events"
	eventskafka "splitsnap/internal/events/kafka"
	"splitsnap/internal/repository"
	"splitsnap/internal/service"
	"splitsnap/internal/storage"
	"splitsnap/pkg/config"
	"splitsnap/pkg/logger"
	"splitsnap/pkg/postgres"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting splitsnap service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		appLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	receiptRepo := repository.NewReceiptRepository(db, appLogger)
	shareRepo := repository.NewShareRepository(db, appLogger)
	settlementRepo := repository.NewSettlementRepository(db, appLogger)

	// Initialize blob storage for the original receipt images
	blobStore, err := storage.NewLocalStore(cfg.Storage.UploadDir, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	// Initialize the AI extractor
	extractor, err := service.NewGigaChatExtractor(&cfg.GigaChat, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize GigaChat extractor", zap.Error(err))
	}
	defer extractor.Close()

	// Initialize the event publisher; without brokers events are dropped
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = eventskafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		appLogger.Info("Kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	defer publisher.Close()

	// Initialize services
	settlementService := service.NewSettlementService(receiptRepo, shareRepo, settlementRepo, publisher, appLogger)
	receiptService := service.NewReceiptService(receiptRepo, shareRepo, blobStore, extractor, settlementService, publisher, cfg.Engine, appLogger)

	// Initialize handlers
	receiptHandler := handlers.NewReceiptHandler(receiptService, appLogger)
	settlementHandler := handlers.NewSettlementHandler(settlementService, appLogger)

	// Setup router
	app := api.SetupRouter(receiptHandler, settlementHandler, appLogger)

	// Prometheus metrics on a dedicated port
	metricsServer := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: promhttp.Handler()}
	go func() {
		appLogger.Info("Metrics server starting", zap.String("address", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
	if err := metricsServer.Shutdown(context.Background()); err != nil {
		appLogger.Error("Metrics server shutdown error", zap.Error(err))
	}
}
