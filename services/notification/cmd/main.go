package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/groupbuy/pkg/config"
	"github.com/sakashimaa/groupbuy/pkg/db"
	outboxUtils "github.com/sakashimaa/groupbuy/pkg/outbox/utils"
	"github.com/sakashimaa/groupbuy/pkg/utils"
	"github.com/sakashimaa/groupbuy/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/groupbuy/services/notification/internal/repository"
	"github.com/sakashimaa/groupbuy/services/notification/internal/service"
	"github.com/sakashimaa/groupbuy/services/notification/transport/kafka"
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
		Service: "notification-service",
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
		ServiceName: "notification-service",
		Environment: cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		Disabled:    !cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Error starting telemetry", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(db.PoolConfig{
		URL:      cfg.Postgres.URL,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		logger.Fatal("error creating postgres db", zap.Error(err))
	}

	emailSender := email.WithBreaker(email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, logger), logger)

	notificationService := service.NewNotificationService(
		emailSender,
		email.NewRenderer(cfg.SMTP.BaseURL),
		repository.NewRecipientRepository(logger),
		pool,
		db.NewTransactor(pool, logger),
		outboxUtils.DefaultRetryPolicy,
		logger,
	)

	consumer := kafka.NewConsumer(notificationService, cfg.Kafka.GroupID, cfg.Kafka.Topic, logger)

	logger.Info("Notification service started!", zap.Strings("brokers", cfg.Kafka.Brokers))

	if err := consumer.Start(ctx, cfg.Kafka.Brokers); err != nil {
		logger.Error("Consumer stopped with error", zap.Error(err))
	}

	shutdownCtx, exit := context.WithTimeout(context.Background(), 5*time.Second)
	defer exit()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error closing telemetry", zap.Error(err))
	} else {
		logger.Info("Closed telemetry successfully")
	}

	pool.Close()
	logger.Info("Postgres pool closed")
}
