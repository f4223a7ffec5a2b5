// Package app wires configuration, storage, collaborator clients, and the
// HTTP server into a running service.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/lessonbook/checkout/internal/checkout"
	"github.com/lessonbook/checkout/internal/client"
	"github.com/lessonbook/checkout/internal/domain/referral"
	"github.com/lessonbook/checkout/internal/handler"
	"github.com/lessonbook/checkout/internal/kvstore"
	"github.com/lessonbook/checkout/internal/repository"
	"github.com/lessonbook/checkout/pkg/health"
	"github.com/lessonbook/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Referral validation with a warmed bloom prefilter. A warming failure
	// degrades to repository-only lookups.
	referralRepo := repository.NewReferralRepository(pool)
	filter, err := referral.WarmFilter(ctx, referralRepo, cfg.Referral.FilterCapacity, cfg.Referral.FilterFPRate)
	if err != nil {
		lg.Warn("referral filter warmup failed, lookups go straight to the database", zap.Error(err))
		filter = nil
	}
	referrals := referral.NewValidator(referralRepo, filter)

	// Platform collaborators: pricing, wallet, payment methods, gateway,
	// booking lifecycle. One client implements all five contracts.
	platform := client.New(cfg.PlatformBaseURL, cfg.PlatformTimeout)

	// Credit decision store: Redis when configured and reachable, otherwise
	// in-process. Either way the store is fallible by contract.
	var store kvstore.Store = kvstore.NewMemory()
	if cfg.Redis.Addr != "" {
		if rc := kvstore.DialRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); rc != nil {
			store = kvstore.NewRedis(rc, cfg.Redis.TTL, lg)
			defer rc.Close()
			healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
				return rc.Ping(ctx).Err()
			})
			lg.Info("decision store backed by redis", zap.String("addr", cfg.Redis.Addr))
		} else {
			lg.Warn("redis unreachable, decision store falls back to memory", zap.String("addr", cfg.Redis.Addr))
		}
	}

	sessions := checkout.NewManager(checkout.ManagerDeps{
		Quoter:   platform,
		Balance:  platform,
		Methods:  platform,
		Gateway:  platform,
		Bookings: platform,
		Attempts: repository.NewAttemptRepository(pool),
		Store:    store,
		Window:   cfg.Quote.DebounceWindow,
		Logger:   lg.Named("checkout"),
	})

	h := handler.New(sessions, referrals)

	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/api", h.Routes())

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("checkout-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
