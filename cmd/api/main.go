// Command api runs the PawKeeper backend: the entitlement engine, billing
// operations, and pet tracking behind one HTTP surface.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pawkeeper/internal/api/handlers"
	"pawkeeper/internal/billing"
	"pawkeeper/internal/config"
	"pawkeeper/internal/core"
	"pawkeeper/internal/db"
	"pawkeeper/internal/entitlement"
	"pawkeeper/internal/external"
	"pawkeeper/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: cfg.Stripe.CallTimeout},
		entitlement.FeaturesForTier,
		external.StripeClientConfig{
			SecretKey:   cfg.Stripe.SecretKey,
			BaseURL:     cfg.Stripe.BaseURL,
			CallTimeout: cfg.Stripe.CallTimeout,
			Logger:      logger,
		},
	)

	registry := entitlement.NewRegistry(
		stripeClient,
		entitlement.NewStaticLimitRegistry(),
		entitlement.Policy{
			CacheMaxAge: cfg.Entitlement.CacheMaxAge,
			Backoff: entitlement.BackoffPolicy{
				Base:        cfg.Entitlement.RetryBase,
				Factor:      2,
				Max:         cfg.Entitlement.RetryMax,
				MaxAttempts: cfg.Entitlement.MaxRetries,
			},
		},
		types.RealClock{},
		nil,
		logger,
	)

	methods := billing.NewPaymentMethodManager(stripeClient, logger)
	subs := billing.NewSubscriptionService(stripeClient, registry, logger)
	pets := db.NewPetRepository(pool)
	validator := core.NewValidator()

	server, err := core.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	engines := engineSource{registry: registry, methods: methods}

	webhookHandler := handlers.NewWebhookHandler(&external.StripeVerifier{}, cfg.Stripe.WebhookSecret, registry, logger)
	webhookHandler.RegisterRoutes(server.Router())

	server.Router().Group(func(r chi.Router) {
		r.Use(core.Authenticate)
		handlers.NewEntitlementHandler(engines).RegisterRoutes(r)
		handlers.NewBillingHandler(methods, subs, validator).RegisterRoutes(r)
		handlers.NewPetsHandler(pets, engines, validator).RegisterRoutes(r)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// engineSource adapts the entitlement registry to the handler-side
// EngineSource interface and clears billing state on logout.
type engineSource struct {
	registry *entitlement.Registry
	methods  *billing.PaymentMethodManager
}

func (s engineSource) For(userID, customerID string) handlers.EntitlementEngine {
	return s.registry.For(userID, customerID)
}

func (s engineSource) Evict(userID string) {
	if customerID := s.registry.Evict(userID); customerID != "" {
		s.methods.Invalidate(customerID)
	}
}
