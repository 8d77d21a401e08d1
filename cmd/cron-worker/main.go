package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/callino/pos-hobex-bridge/internal/cron"
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

const lockKeyFormat = "hb:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	terminalMetrics := metrics.NewTerminalMetrics(prometheus.DefaultRegisterer)
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

	tokenJob, err := cron.NewTokenRenewJob(cron.TokenRenewJobParams{
		Logger:    logg,
		Terminals: terminalService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create token renew job", err)
		os.Exit(1)
	}
	recoveryJob, err := cron.NewPendingRecoveryJob(cron.PendingRecoveryJobParams{
		Logger:   logg,
		Payments: paymentService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending recovery job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(tokenJob, recoveryJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
