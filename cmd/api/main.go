package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/duka/supermarket-backend/api/routes"
	"github.com/duka/supermarket-backend/internal/compensation"
	"github.com/duka/supermarket-backend/internal/inventory"
	"github.com/duka/supermarket-backend/internal/ledger"
	"github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/internal/payments"
	mpesawebhook "github.com/duka/supermarket-backend/internal/webhooks/mpesa"
	"github.com/duka/supermarket-backend/pkg/config"
	"github.com/duka/supermarket-backend/pkg/db"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/metrics"
	"github.com/duka/supermarket-backend/pkg/migrate"
	"github.com/duka/supermarket-backend/pkg/mpesa"
	"github.com/duka/supermarket-backend/pkg/outbox"
	"github.com/duka/supermarket-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := mpesa.NewClient(cfg.Mpesa)
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa client", err)
		os.Exit(1)
	}

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, gateway)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"mpesa_host": cfg.Mpesa.BaseURL(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	gateway *mpesa.Client,
) (routes.Dependencies, error) {
	conn := dbClient.DB()
	orderRepo := orders.NewRepository(conn)
	paymentRepo := payments.NewRepository(conn)
	productRepo := inventory.NewProductRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, err
	}
	mutator, err := inventory.NewMutator(productRepo, ledgerSvc)
	if err != nil {
		return routes.Dependencies{}, err
	}
	paymentMachine, err := payments.NewStateMachine(paymentRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}

	ordersSvc, err := orders.NewService(orderRepo, dbClient, productRepo, paymentMachine)
	if err != nil {
		return routes.Dependencies{}, err
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:         paymentRepo,
		Orders:       orderRepo,
		Gateway:      gateway,
		Limiter:      redisClient,
		Logger:       logg,
		BaseURL:      cfg.App.BaseURL,
		CallbackPath: cfg.Mpesa.CallbackPath,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	compensationSvc, err := compensation.NewService(compensation.Params{
		Tx:        dbClient,
		Orders:    orderRepo,
		Payments:  paymentRepo,
		Inventory: mutator,
		Ledger:    ledgerSvc,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	reconciler, err := mpesawebhook.NewReconciler(mpesawebhook.ReconcilerParams{
		Tx:                  dbClient,
		Orders:              orderRepo,
		Payments:            paymentRepo,
		Inventory:           mutator,
		Outbox:              outboxSvc,
		Logger:              logg,
		Metrics:             metrics.NewCallbackMetrics(prometheus.DefaultRegisterer),
		AllowAmountFallback: cfg.Mpesa.AllowAmountFallback,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := mpesawebhook.NewIdempotencyGuard(redisClient, cfg.Mpesa.CallbackDedupeTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:           dbClient,
		Redis:        redisClient,
		Gatherer:     prometheus.DefaultGatherer,
		Orders:       ordersSvc,
		Payments:     paymentsSvc,
		Compensation: compensationSvc,
		Ledger:       ledgerSvc,
		DLQ:          outbox.NewDLQRepository(conn),
		Callbacks:    reconciler,
		Guard:        guard,
	}, nil
}
