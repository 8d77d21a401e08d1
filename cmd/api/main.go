package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/callino/pos-hobex-bridge/api/routes"
	"github.com/callino/pos-hobex-bridge/internal/notifications"
	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/internal/printing"
	"github.com/callino/pos-hobex-bridge/internal/terminals"
	"github.com/callino/pos-hobex-bridge/pkg/config"
	"github.com/callino/pos-hobex-bridge/pkg/db"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
	"github.com/callino/pos-hobex-bridge/pkg/metrics"
	"github.com/callino/pos-hobex-bridge/pkg/migrate"
	"github.com/callino/pos-hobex-bridge/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

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

	registry := prometheus.NewRegistry()
	terminalMetrics := metrics.NewTerminalMetrics(registry)

	hobexClient, err := hobex.NewClient(cfg.Hobex, logg, terminalMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create hobex client", err)
		os.Exit(1)
	}

	terminalService, err := terminals.NewService(terminals.ServiceParams{
		Repo:   terminals.NewRepository(dbClient.DB()),
		Hobex:  hobexClient,
		Cache:  redisClient,
		Logger: logg,
		Config: cfg.Hobex,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create terminal service", err)
		os.Exit(1)
	}

	gateway, err := terminals.NewGateway(hobexClient, terminalService)
	if err != nil {
		logg.Error(context.Background(), "failed to create terminal gateway", err)
		os.Exit(1)
	}

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notificationService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}
	sink, err := notifications.NewSink(notificationsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification sink", err)
		os.Exit(1)
	}

	printer, err := printing.NewPrinter(cfg.Printer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipt printer", err)
		os.Exit(1)
	}

	rounding, err := cfg.Hobex.RoundingStep()
	if err != nil {
		logg.Error(context.Background(), "invalid currency rounding", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:      payments.NewRepository(dbClient.DB()),
		Gateway:   gateway,
		Sink:      sink,
		Printer:   printer,
		Locker:    payments.NewLineLocker(redisClient, cfg.Hobex.LineLockTTL),
		Terminals: terminalService,
		Logger:    logg,
		Rounding:  rounding,
		Currency:  cfg.Hobex.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
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
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Payments:      paymentService,
			Terminals:     terminalService,
			Notifications: notificationService,
			Metrics:       registry,
		}),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped")
}
