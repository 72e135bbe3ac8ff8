package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vhvplatform/go-notification-engine/internal/consumer"
	"github.com/vhvplatform/go-notification-engine/internal/dlq"
	"github.com/vhvplatform/go-notification-engine/internal/handler"
	"github.com/vhvplatform/go-notification-engine/internal/middleware"
	"github.com/vhvplatform/go-notification-engine/internal/queue"
	"github.com/vhvplatform/go-notification-engine/internal/render"
	"github.com/vhvplatform/go-notification-engine/internal/repository"
	"github.com/vhvplatform/go-notification-engine/internal/resolver"
	"github.com/vhvplatform/go-notification-engine/internal/scheduler"
	"github.com/vhvplatform/go-notification-engine/internal/service"
	"github.com/vhvplatform/go-notification-engine/internal/shared/config"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
	"github.com/vhvplatform/go-notification-engine/internal/shared/mongodb"
	"github.com/vhvplatform/go-notification-engine/internal/shared/postgres"
	"github.com/vhvplatform/go-notification-engine/internal/shared/rabbitmq"
	"github.com/vhvplatform/go-notification-engine/internal/smtp"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger().Fatal("Failed to load configuration", "error", err)
	}

	// Initialize logger
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer log.Sync()

	log.Info("Starting Notification Engine...")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	// Initialize MongoDB
	mongoClient, err := mongodb.NewMongoClient(startCtx, cfg.MongoDB.URI, cfg.MongoDB.Database, mongodb.DefaultOptions())
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	defer mongoClient.Disconnect(context.Background())

	// Initialize the practice directory (PostgreSQL)
	pgPool, err := postgres.NewPool(startCtx, cfg.Postgres.DSN, postgres.PoolOptions{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", "error", err)
	}
	defer pgPool.Close()

	// Initialize repositories
	notificationRepo := repository.NewNotificationRepository(mongoClient)
	preferencesRepo := repository.NewPreferencesRepository(mongoClient)
	triggerRepo := repository.NewTriggerRepository(mongoClient)
	templateRepo := repository.NewTemplateRepository(mongoClient, cfg.Engine.TriggerCacheTTL)
	directoryRepo := repository.NewDirectoryRepository(pgPool)
	failedEmailRepo := repository.NewFailedEmailRepository(mongoClient)

	for name, ensure := range map[string]func(context.Context) error{
		"notifications": notificationRepo.EnsureIndexes,
		"preferences":   preferencesRepo.EnsureIndexes,
		"triggers":      triggerRepo.EnsureIndexes,
		"failed_emails": failedEmailRepo.EnsureIndexes,
	} {
		if err := ensure(startCtx); err != nil {
			log.Error("Failed to ensure indexes", "collection", name, "error", err)
		}
	}

	// Rendering in the practice timezone
	location, err := cfg.Practice.Location()
	if err != nil {
		log.Fatal("Invalid practice timezone", "error", err)
	}
	renderer := render.NewRenderer(location, cfg.Practice.DateFields)

	// Email delivery
	transport, closeTransport := newEmailTransport(cfg, log)
	defer closeTransport()
	emailDispatcher := service.NewEmailDispatcher(transport, preferencesRepo, renderer, service.EmailDispatcherConfig{
		FromEmail:     cfg.Email.FromEmail,
		FromName:      cfg.Email.FromName,
		SendTimeout:   cfg.Email.Timeout,
		RatePerSecond: cfg.Email.RatePerSecond,
		Burst:         cfg.Email.Burst,
		AppURL:        cfg.Practice.AppURL,
	}, log)
	deadLetters := dlq.NewDeadLetterQueue(failedEmailRepo, transport, dlq.Config{
		MaxAttempts: cfg.Email.MaxAttempts,
		BaseDelay:   cfg.Email.RetryDelay,
		SendTimeout: cfg.Email.Timeout,
	}, log)
	emailDispatcher.SetFailureRecorder(deadLetters)

	// Trigger engine and its async boundary
	engine := service.NewTriggerEngine(
		triggerRepo,
		templateRepo,
		notificationRepo,
		resolver.New(directoryRepo),
		emailDispatcher,
		renderer,
		service.EngineConfig{
			TriggerCacheTTL: cfg.Engine.TriggerCacheTTL,
			NotificationTTL: cfg.Engine.NotificationTTL,
			StoreTimeout:    cfg.Engine.StoreTimeout,
		},
		log,
	)
	eventDispatcher := service.NewEventDispatcher(engine, queue.NewPriorityQueue(cfg.Engine.QueueSize),
		cfg.Engine.Workers, log)
	eventDispatcher.Start()

	notificationService := service.NewNotificationService(notificationRepo, log)
	preferencesService := service.NewPreferencesService(preferencesRepo, log)

	// Housekeeping
	maintenance := scheduler.NewMaintenanceScheduler(log,
		scheduler.Job{Name: "expiry_sweep", Schedule: cfg.Engine.CleanupSchedule, Run: notificationService.CleanupExpired},
		scheduler.Job{Name: "email_retry", Schedule: cfg.Engine.RetrySchedule, Run: deadLetters.RetryDue},
	)
	if err := maintenance.Start(); err != nil {
		log.Error("Failed to start maintenance scheduler", "error", err)
	}

	// RabbitMQ consumer
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	if cfg.RabbitMQ.Enabled {
		dial := func() (consumer.Broker, error) {
			client, err := rabbitmq.NewRabbitMQClient(cfg.RabbitMQ.URL)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
		eventConsumer := consumer.NewEventConsumer(dial, rabbitmq.Topology{
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.Engine.Workers * 2,
		}, eventDispatcher, log)
		go func() {
			defer close(consumerDone)
			eventConsumer.Run(consumerCtx)
		}()
	} else {
		close(consumerDone)
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.Handlers{
		Events:        handler.NewEventHandler(eventDispatcher, log),
		Notifications: handler.NewNotificationHandler(notificationService, log),
		Preferences:   handler.NewPreferencesHandler(preferencesService, log),
		Health: handler.NewHealthHandler(map[string]handler.ReadinessCheck{
			"mongodb":  mongoClient.Ping,
			"postgres": pgPool.Ping,
		}),
		RateLimiter: middleware.NewUserRateLimiter(cfg.RateLimit.PerUser, cfg.RateLimit.Burst),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Notification Engine started", "port", cfg.Server.Port,
			"email_provider", cfg.Email.Provider, "email_configured", emailDispatcher.Configured())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// SIGHUP drops cached triggers and templates; SIGINT/SIGTERM shut down
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		engine.InvalidateTriggers()
		templateRepo.Purge()
		log.Info("Trigger and template caches cleared")
	}

	log.Info("Shutting down Notification Engine...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	stopConsumer()
	<-consumerDone
	maintenance.Stop(ctx)
	if err := eventDispatcher.Stop(ctx); err != nil {
		log.Error("Event queue not drained", "error", err, "pending", eventDispatcher.QueueSize())
	}

	log.Info("Notification Engine stopped")
}

// newEmailTransport builds the configured transport. A nil transport disables email.
func newEmailTransport(cfg *config.Config, log *logger.Logger) (service.EmailTransport, func()) {
	noop := func() {}
	if !cfg.Email.Configured(cfg.SMTP) {
		if !strings.EqualFold(cfg.Email.Provider, "none") {
			log.Warn("Email provider is missing credentials, email disabled", "provider", cfg.Email.Provider)
		}
		return nil, noop
	}

	switch strings.ToLower(cfg.Email.Provider) {
	case "http":
		return service.NewHTTPEmailTransport(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.Timeout), noop
	case "smtp":
		pool := smtp.NewPool(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}, cfg.SMTP.PoolSize)
		return service.NewSMTPEmailTransport(pool), pool.Close
	}
	return nil, noop
}
