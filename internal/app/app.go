// Package app assembles the fulfillment engine and its collaborators from
// configuration. Both the api and cron-worker binaries build through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookloop/orderflow/internal/affiliates"
	"github.com/bookloop/orderflow/internal/courier"
	"github.com/bookloop/orderflow/internal/fulfillment"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/listings"
	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/internal/payments/bobpay"
	"github.com/bookloop/orderflow/internal/payments/paystack"
	"github.com/bookloop/orderflow/internal/refunds"
	"github.com/bookloop/orderflow/internal/settings"
	"github.com/bookloop/orderflow/internal/settlement"
	"github.com/bookloop/orderflow/pkg/config"
	"github.com/bookloop/orderflow/pkg/db"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/metrics"
	"github.com/bookloop/orderflow/pkg/outbox"
	"github.com/bookloop/orderflow/pkg/redis"
	"github.com/bookloop/orderflow/pkg/security"
)

// Components are the long-lived services a binary may need after assembly.
type Components struct {
	Engine    *fulfillment.Engine
	Orders    orders.Repository
	Providers *payments.Registry
	Settings  *settings.Service
	Outbox    *outbox.Repository
	Metrics   *metrics.FlowMetrics
}

// Build wires the engine. Providers, the courier API and the banking key are
// optional; whatever is missing is logged and left out.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*Components, error) {
	if cfg == nil || dbClient == nil || redisClient == nil {
		return nil, errors.New("config, database and redis are required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	gdb := dbClient.DB()

	providers, err := buildProviders(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	settingsService, err := settings.NewService(
		settings.NewRepository(gdb),
		settingsCache(cfg.Settings, redisClient),
		cfg.Settings.CacheTTL,
		logg,
	)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	outboxRepo := outbox.NewRepository(gdb)
	emitter := outbox.NewService(outboxRepo, logg)

	guard, err := idempotency.NewGuard(dbClient)
	if err != nil {
		return nil, fmt.Errorf("idempotency guard: %w", err)
	}
	orderRepo := orders.NewRepository(gdb)
	machine, err := orders.NewMachine(orderRepo, emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("order machine: %w", err)
	}
	paymentRepo := payments.NewRepository(gdb)
	flowMetrics := metrics.NewFlowMetrics(reg)

	affiliateService, err := affiliates.NewService(settingsService, logg)
	if err != nil {
		return nil, fmt.Errorf("affiliates: %w", err)
	}
	notifier, err := notifications.NewService(emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}

	router, err := refunds.NewRouter(providers, buildCanceller(ctx, cfg.Courier, logg), logg)
	if err != nil {
		return nil, fmt.Errorf("refund router: %w", err)
	}
	refundService, err := refunds.NewService(refunds.Deps{
		DB:         dbClient,
		Guard:      guard,
		Orders:     orderRepo,
		Machine:    machine,
		Payments:   paymentRepo,
		Router:     router,
		Affiliates: affiliateService,
		Notifier:   notifier,
		Outbox:     emitter,
		Metrics:    flowMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("refund service: %w", err)
	}

	opener, err := buildOpener(ctx, cfg.Banking, logg)
	if err != nil {
		return nil, err
	}
	settler, err := settlement.NewEngine(settingsService, opener, logg)
	if err != nil {
		return nil, fmt.Errorf("settlement: %w", err)
	}

	engine, err := fulfillment.NewEngine(fulfillment.Deps{
		DB:         dbClient,
		Guard:      guard,
		Orders:     orderRepo,
		Machine:    machine,
		Payments:   paymentRepo,
		Providers:  providers,
		Listings:   listings.NewBookReader(gdb),
		Settings:   settingsService,
		Refunds:    refundService,
		Settlement: settler,
		Affiliates: affiliateService,
		Notifier:   notifier,
		Outbox:     emitter,
		URLs:       cfg.URLs,
		Metrics:    flowMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment engine: %w", err)
	}

	return &Components{
		Engine:    engine,
		Orders:    orderRepo,
		Providers: providers,
		Settings:  settingsService,
		Outbox:    outboxRepo,
		Metrics:   flowMetrics,
	}, nil
}

func buildProviders(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*payments.Registry, error) {
	var enabled []payments.Provider
	if cfg.BobPay.Enabled() {
		client, err := bobpay.New(cfg.BobPay)
		if err != nil {
			return nil, fmt.Errorf("bobpay: %w", err)
		}
		enabled = append(enabled, client)
	} else {
		logg.Warn(logg.WithProvider(ctx, "bobpay"), "bobpay credentials missing, provider disabled")
	}
	if cfg.Paystack.Enabled() {
		client, err := paystack.New(cfg.Paystack)
		if err != nil {
			return nil, fmt.Errorf("paystack: %w", err)
		}
		enabled = append(enabled, client)
	} else {
		logg.Warn(logg.WithProvider(ctx, "paystack"), "paystack secret missing, provider disabled")
	}
	registry, err := payments.NewRegistry(enabled...)
	if err != nil {
		return nil, fmt.Errorf("payment registry: %w", err)
	}
	return registry, nil
}

func buildCanceller(ctx context.Context, cfg config.CourierConfig, logg *logger.Logger) courier.Canceller {
	client, err := courier.New(cfg)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "courier api unavailable, committed refunds with tracking will be refused")
		return nil
	}
	return client
}

func buildOpener(ctx context.Context, cfg config.BankingConfig, logg *logger.Logger) (settlement.Opener, error) {
	if strings.TrimSpace(cfg.EncryptionKey) == "" {
		logg.Warn(ctx, "banking encryption key missing, all payouts go to wallets")
		return nil, nil
	}
	box, err := security.NewSealBox(cfg)
	if err != nil {
		return nil, fmt.Errorf("banking sealbox: %w", err)
	}
	return box, nil
}

func settingsCache(cfg config.SettingsConfig, redisClient *redis.Client) settings.Cache {
	if strings.EqualFold(strings.TrimSpace(cfg.CacheBackend), "memory") {
		return settings.NewMemoryCache()
	}
	return settings.NewRedisCache(redisClient)
}
