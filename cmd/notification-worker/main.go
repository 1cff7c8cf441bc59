package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/duka/supermarket-backend/internal/notifications"
	"github.com/duka/supermarket-backend/pkg/config"
	"github.com/duka/supermarket-backend/pkg/instance"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/outbox/idempotency"
	"github.com/duka/supermarket-backend/pkg/pubsub"
	"github.com/duka/supermarket-backend/pkg/redis"
	"github.com/duka/supermarket-backend/pkg/sendgrid"
	"github.com/duka/supermarket-backend/pkg/sms"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "notification-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "notification-worker"

	logg = logger.New(logger.Options{
		ServiceName: "notification-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.NotificationSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "notification subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	dispatcherParams := notifications.DispatcherParams{Logger: logg}
	if emailClient, err := sendgrid.NewClient(cfg.Sendgrid); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "email notifications disabled")
	} else {
		dispatcherParams.Email = emailClient
	}
	if smsClient, err := sms.NewClient(cfg.SMS, nil); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "sms notifications disabled")
	} else {
		dispatcherParams.SMS = smsClient
	}

	dispatcher, err := notifications.NewDispatcher(dispatcherParams)
	requireResource(ctx, logg, "notification dispatcher", err)

	consumer, err := notifications.NewConsumer(subscription, manager, dispatcher, logg)
	requireResource(ctx, logg, "notification consumer", err)

	service, err := NewService(ServiceParams{
		Logger:   logg,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
	})
	requireResource(ctx, logg, "notification worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "notification worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notification worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
