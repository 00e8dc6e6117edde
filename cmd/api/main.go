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

	"github.com/bookloop/orderflow/api/controllers"
	"github.com/bookloop/orderflow/api/routes"
	"github.com/bookloop/orderflow/internal/app"
	"github.com/bookloop/orderflow/internal/webhooks"
	courierwebhook "github.com/bookloop/orderflow/internal/webhooks/courier"
	paymentwebhook "github.com/bookloop/orderflow/internal/webhooks/payments"
	"github.com/bookloop/orderflow/pkg/config"
	"github.com/bookloop/orderflow/pkg/db"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/migrate"
	"github.com/bookloop/orderflow/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

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
		Format:      cfg.App.LogFormat,
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

	components, err := app.Build(context.Background(), cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(context.Background(), "failed to assemble fulfillment engine", err)
		os.Exit(1)
	}

	paymentInflight, err := webhooks.NewInflightGuard(redisClient, cfg.Webhooks.InflightTTL, "payment-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook guard", err)
		os.Exit(1)
	}
	paymentWebhooks, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Providers: components.Providers,
		Engine:    components.Engine,
		Inflight:  paymentInflight,
		Metrics:   components.Metrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook service", err)
		os.Exit(1)
	}

	courierInflight, err := webhooks.NewInflightGuard(redisClient, cfg.Webhooks.InflightTTL, "courier-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create courier webhook guard", err)
		os.Exit(1)
	}
	courierWebhooks, err := courierwebhook.NewService(courierwebhook.ServiceParams{
		Engine:        components.Engine,
		Secret:        cfg.Courier.WebhookSecret,
		TrustUnsigned: cfg.Courier.TrustUnsigned,
		Inflight:      courierInflight,
		Metrics:       components.Metrics,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create courier webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			readiness,
			redisClient,
			prometheus.DefaultGatherer,
			components.Engine,
			paymentWebhooks,
			courierWebhooks,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
