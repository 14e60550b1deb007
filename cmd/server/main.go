package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/delivery-tracker/config"
	"github.com/ikkim/delivery-tracker/internal/app/controller"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/broker/kafka"
	"github.com/ikkim/delivery-tracker/internal/db"
	"github.com/ikkim/delivery-tracker/internal/middleware"
	"github.com/ikkim/delivery-tracker/internal/router"
	"github.com/ikkim/delivery-tracker/internal/scheduler"
	"github.com/ikkim/delivery-tracker/internal/storage"
	ws "github.com/ikkim/delivery-tracker/internal/websocket"
	"github.com/ikkim/delivery-tracker/internal/worker"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"github.com/ikkim/delivery-tracker/pkg/redis"
	"github.com/ikkim/delivery-tracker/pkg/sms"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	if cfg.Server.LogLevel != "" {
		logLevel = cfg.Server.LogLevel
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
		Service:     "delivery-tracker",
	})

	logger.Info("Starting delivery tracker server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis is optional. Interfaces stay nil when it is not configured.
	var (
		blacklist service.TokenBlacklist
		limiter   service.RateLimiter
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", err)
		}
		defer redisClient.Close()
		blacklist = redisClient
		limiter = redisClient
	} else {
		logger.Warn("Redis not configured; logout revocation and reset throttling are disabled", nil)
	}

	// Status changes always reach the live feed; Kafka is optional.
	feedHub := ws.NewHub()
	go feedHub.Run()

	var kafkaEvents service.StatusEvents
	var eventPool *worker.Pool
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		eventPool = worker.NewPool("status-events", 2, cfg.Notification.QueueSize)
		kafkaEvents = service.NewKafkaStatusEvents(kafka.NewStatusPublisher(producer, cfg.Kafka.StatusChangedTopic), eventPool)
	}
	events := service.FanOutStatusEvents(kafkaEvents, feedHub)

	objectStorage := storage.NewS3Storage(cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
	smsSender := sms.NewSender(cfg.SMS)
	notificationPool := worker.NewPool("notifications", cfg.Notification.Workers, cfg.Notification.QueueSize)

	database := db.GetDB()

	// Initialize repositories
	userRepo := repository.NewUserRepository(database)
	storeRepo := repository.NewStoreRepository(database)
	orderRepo := repository.NewOrderRepository(database)
	attemptRepo := repository.NewDeliveryAttemptRepository(database)
	photoRepo := repository.NewDeliveryPhotoRepository(database)
	templateRepo := repository.NewMessageTemplateRepository(database)
	resetRepo := repository.NewPasswordResetRepository(database)

	// Initialize services
	authService := service.NewAuthService(
		userRepo,
		blacklist,
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	passwordResetService := service.NewPasswordResetService(resetRepo, userRepo, smsSender, limiter, cfg.Server.SiteURL)
	userService := service.NewUserService(userRepo, storeRepo, smsSender, cfg.Server.SiteURL)
	photoService := service.NewPhotoService(
		photoRepo,
		attemptRepo,
		orderRepo,
		objectStorage,
		cfg.Photo.SignedURLTTL,
		cfg.Photo.MaxUploadBytes,
	)
	notifier := service.NewNotificationDispatcher(templateRepo, smsSender, notificationPool)
	attemptService := service.NewDeliveryAttemptService(
		database,
		attemptRepo,
		orderRepo,
		userRepo,
		photoService,
		notifier,
		events,
	)
	orderService := service.NewOrderService(database, orderRepo, storeRepo, userRepo, attemptService)
	templateService := service.NewMessageTemplateService(templateRepo, storeRepo)

	purgeScheduler := scheduler.NewResetTokenScheduler(passwordResetService, scheduler.DefaultPurgeSpec)
	if err := purgeScheduler.Start(); err != nil {
		logger.Fatal("Failed to start reset token scheduler", err)
	}

	r := router.NewRouter(
		controller.NewAuthController(authService, passwordResetService, userService),
		controller.NewUserController(userService),
		controller.NewOrderController(orderService),
		controller.NewDeliveryAttemptController(attemptService),
		controller.NewPhotoController(photoService),
		controller.NewMessageTemplateController(templateService),
		controller.NewStoreController(service.NewStoreService(storeRepo)),
		controller.NewStatusFeedController(feedHub, cfg.CORS.AllowedOrigins),
		middleware.NewAuthMiddleware(cfg.JWT.Secret, blacklist),
		cfg,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shut down", err)
	}
	purgeScheduler.Stop()
	feedHub.Stop()

	// drain queued SMS and events before the database and producer close
	if err := notificationPool.Close(ctx); err != nil {
		logger.Warn("Notification queue not drained", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if eventPool != nil {
		if err := eventPool.Close(ctx); err != nil {
			logger.Warn("Event queue not drained", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	logger.Info("Server stopped successfully", nil)
}
