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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/shenikar/dispatch_coordination_system/docs"
	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/changefeed/pgfeed"
	"github.com/shenikar/dispatch_coordination_system/internal/changefeed/redisfeed"
	"github.com/shenikar/dispatch_coordination_system/internal/config"
	"github.com/shenikar/dispatch_coordination_system/internal/eventbus"
	v1 "github.com/shenikar/dispatch_coordination_system/internal/handler/http/v1"
	"github.com/shenikar/dispatch_coordination_system/internal/metrics"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/internal/repository"
	"github.com/shenikar/dispatch_coordination_system/internal/service"
	"github.com/shenikar/dispatch_coordination_system/internal/webhook"
	"github.com/shenikar/dispatch_coordination_system/pkg/postgres"
	redisclient "github.com/shenikar/dispatch_coordination_system/pkg/redis"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP coordinator (default command)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Контекст для graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// Запуск миграций
	if cfg.AutoMigrate {
		if err := runMigrations(cfg, log, migrateUp); err != nil {
			return err
		}
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// Инициализация репозиториев
	accidentRepo := repository.NewAccidentRepository(dbpool)
	assignmentRepo := repository.NewAssignmentRepository(dbpool)
	responderRepo := repository.NewResponderRepository(dbpool)

	// Синхронизированные кеши
	feed := newFeed(cfg, dbpool, redisClient, log)
	syncOpts := changefeed.Options{
		Logger:          log,
		Metrics:         m,
		InitialInterval: cfg.ReseedInitialInterval,
		MaxInterval:     cfg.ReseedMaxInterval,
	}
	reportsView, err := changefeed.New[models.AccidentReport](models.EntityAccidents, accidentRepo, feed, nil, syncOpts).
		Subscribe(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe to accidents: %w", err)
	}
	defer reportsView.Close()

	assignmentsView, err := changefeed.New[models.DispatchAssignment](models.EntityAssignments, assignmentRepo, feed, nil, syncOpts).
		Subscribe(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe to assignments: %w", err)
	}
	defer assignmentsView.Close()

	respondersOpts := syncOpts
	respondersOpts.Joined = true
	respondersView, err := changefeed.New[models.ResponderAvailability](models.EntityResponders, responderRepo, feed, nil, respondersOpts).
		Subscribe(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe to responders: %w", err)
	}
	defer respondersView.Close()

	views := service.Views{
		Reports:     reportsView,
		Assignments: assignmentsView,
		Responders:  respondersView,
	}

	// Уведомления о подтвержденных командах
	var notifier webhook.WebhookPublisher = webhook.NopPublisher{}
	if cfg.WebhookURL != "" {
		notifier = webhook.NewRedisWebhookPublisher(redisClient)
		webhook.NewWebhookWorker(redisClient, log, cfg).Start(ctx)
	}

	// Инициализация сервисов
	opts := service.Options{
		PendingTTL:    cfg.PendingTTL,
		NotifyTimeout: cfg.NotifyTimeout,
		Metrics:       m,
	}
	reportService := service.NewReportService(views, accidentRepo, notifier, log, opts)
	defer reportService.Close()
	dispatchService := service.NewDispatchService(views, assignmentRepo, notifier, log, opts)
	defer dispatchService.Close()
	availabilityService := service.NewAvailabilityService(views, responderRepo, notifier, log, opts)
	defer availabilityService.Close()

	// Живая лента для консоли
	bus := eventbus.New[service.LiveEvent]()
	defer bus.Close()
	stopLive := service.PublishChanges(views, bus)
	defer stopLive()

	// Инициализация хэндлеров
	handler := v1.NewHandler(reportService, dispatchService, availabilityService, bus, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return serveHTTP(ctx, cfg, log, router, bus.Close)
}

// newFeed выбирает транспорт потока изменений по CHANGEFEED_DRIVER
func newFeed(cfg *config.Config, dbpool *pgxpool.Pool, redisClient *redis.Client, log *logrus.Logger) changefeed.Feed {
	if cfg.ChangefeedDriver == config.DriverRedis {
		log.Info("Using Redis Streams change feed")
		return redisfeed.NewFeed(redisClient, log)
	}
	log.Info("Using Postgres LISTEN/NOTIFY change feed")
	return pgfeed.New(dbpool, log)
}

// serveHTTP обслуживает запросы до отмены ctx. onShutdown вызывается в начале остановки,
// чтобы долгие SSE-соединения завершились до истечения shutdownTimeout.
func serveHTTP(ctx context.Context, cfg *config.Config, log *logrus.Logger, router http.Handler, onShutdown func()) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(onShutdown)

	// Запуск сервера в горутине
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	select {
	case err := <-errCh:
		return fmt.Errorf("error starting HTTP server: %w", err)
	case <-ctx.Done():
	}
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server gracefully stopped")
	return nil
}
