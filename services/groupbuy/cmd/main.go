package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/groupbuy/pkg/config"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/kafka"
	outboxRepository "github.com/sakashimaa/groupbuy/pkg/outbox/repository"
	"github.com/sakashimaa/groupbuy/pkg/outbox/worker"
	"github.com/sakashimaa/groupbuy/pkg/utils"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/notify"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/transport/http"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/transport/http/handler"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:   cfg.Logger.Level,
		Env:     cfg.Env,
		Service: "groupbuy-service",
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("error syncing logger: %v", err)
		}
	}()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: "groupbuy-service",
		Environment: cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		Disabled:    !cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Failed to init tracer", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(db.PoolConfig{
		URL:      cfg.Postgres.URL,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Error closing redis client", zap.Error(err))
		}
	}()

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Failed to create kafka producer", zap.Error(err))
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("Error closing kafka producer", zap.Error(err))
		}
	}()

	transactor := db.NewTransactor(pool, logger)

	groupOrderRepo := repository.NewGroupOrderRepository(logger)
	participationRepo := repository.NewParticipationRepository(logger)
	productRepo := repository.NewProductRepository(logger)
	userRepo := repository.NewUserRepository(logger)
	activityRepo := repository.NewActivityRepository()
	outboxRepo := outboxRepository.NewOutboxRepository(logger)

	notifier := notify.NewOutboxNotifier(outboxRepo, pool, cfg.Kafka.Topic)

	lifecycleService := service.NewLifecycleService(
		groupOrderRepo,
		participationRepo,
		activityRepo,
		pool,
		transactor,
		notifier,
		time.Now,
		logger,
	)
	participationService := service.NewParticipationService(
		groupOrderRepo,
		participationRepo,
		productRepo,
		pool,
		transactor,
		notifier,
		time.Now,
		service.ParticipationOptions{AllowLeaveAfterClose: cfg.Participation.AllowLeaveAfterClose},
		logger,
	)
	reportService := service.NewReportService(groupOrderRepo, participationRepo, userRepo, transactor, logger)
	catalogService := service.NewCachedCatalogService(
		service.NewCatalogService(productRepo, activityRepo, pool, logger),
		redisClient,
		cfg.Redis.CacheTTL,
		logger,
	)
	userService := service.NewUserService(userRepo, pool)

	processor := worker.NewOutboxProcessor(transactor, outboxRepo, producer, logger, worker.Options{
		BatchSize: cfg.Outbox.BatchSize,
		Interval:  cfg.Outbox.Interval,
	})
	go processor.Start(ctx)

	if cfg.Lifecycle.SweepInterval > 0 {
		go runSweeper(ctx, lifecycleService, cfg.Lifecycle.SweepInterval, logger)
	}

	app := fiber.New()

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	handlers := &http.Handlers{
		GroupOrder:    handler.NewGroupOrderHandler(lifecycleService, cfg.HTTP.Timeout, logger),
		Participation: handler.NewParticipationHandler(participationService, cfg.HTTP.Timeout, logger),
		Product:       handler.NewProductHandler(catalogService, cfg.HTTP.Timeout, logger),
		Report:        handler.NewReportHandler(reportService, cfg.HTTP.Timeout, logger),
		User:          handler.NewUserHandler(userService, cfg.HTTP.Timeout, logger),
	}

	http.RegisterRoutes(app, handlers, []byte(cfg.Auth.AccessSecret))

	logger.Info("Groupbuy service started!")

	go func() {
		logger.Info("HTTP Service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			logger.Fatal("Error listening on HTTP port", zap.String("port", cfg.HTTP.Port), zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownContext); err != nil {
		logger.Error("Error shutting down HTTP app", zap.Error(err))
	} else {
		logger.Info("HTTP App stopped gracefully")
	}

	if err := tp.Shutdown(shutdownContext); err != nil {
		logger.Error("Error shutting down telemetry", zap.Error(err))
	} else {
		logger.Info("Telemetry stopped correctly")
	}
}

// runSweeper moves due orders forward between reads so status notifications
// go out even when nobody is browsing.
func runSweeper(ctx context.Context, lifecycle service.LifecycleService, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := lifecycle.SweepNow(ctx)
			if err != nil {
				logger.Warn("Status sweep failed", zap.Error(err))
				continue
			}
			if len(result.Opened) > 0 || len(result.Closed) > 0 {
				logger.Info(
					"Status sweep applied",
					zap.Int("opened", len(result.Opened)),
					zap.Int("closed", len(result.Closed)),
				)
			}
		}
	}
}
