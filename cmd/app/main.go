package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bot-payout/internal/audit"
	"bot-payout/internal/bot"
	"bot-payout/internal/cache"
	"bot-payout/internal/config"
	"bot-payout/internal/httpserver"
	"bot-payout/internal/journal"
	"bot-payout/internal/logging"
	"bot-payout/internal/metrics"
	"bot-payout/internal/provider"
	"bot-payout/internal/tg"
	"bot-payout/internal/wizard"
	"bot-payout/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting payout bot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	store, err := journal.Open(journal.Config{
		Path:       cfg.JournalPath,
		BackupDir:  cfg.BackupDir,
		BackupKeep: cfg.BackupKeep,
		Defaults: journal.Settings{
			MinDeposit: cfg.MinDeposit,
			MaxDeposit: cfg.MaxDeposit,
			FeePercent: cfg.FeePercent,
		},
	}, logger, metricRegistry)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := store.Flush(); err != nil {
			logger.Error("journal flush failed on shutdown", "error", err)
		}
	}()

	var auditStore *audit.Store
	auditStore, err = audit.Open(ctx, cfg.AuditDBPath, migrations.Files, logger)
	if err != nil {
		logger.Warn("audit store unavailable, continuing without it", "error", err)
		auditStore = nil
	} else {
		defer auditStore.Close()
	}

	providerClient := provider.New(provider.Config{
		BaseURL:        cfg.ProviderBaseURL,
		APIKey:         cfg.ProviderAPIKey,
		Timeout:        cfg.ProviderTimeout,
		RetryMax:       cfg.RetryMax,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	}, logger, metricRegistry, redisClient)

	if ok, message := providerClient.TestConnection(ctx); ok {
		logger.Info("provider connection ok", "detail", message)
	} else {
		logger.Warn("provider connection failed", "detail", message)
	}

	wizardStore := wizard.NewStore(wizard.Config{
		TransferBounds: wizard.Bounds{Min: cfg.MinTransfer, Max: cfg.MaxTransfer},
		DepositBounds: func() wizard.Bounds {
			settings := store.Settings()
			return wizard.Bounds{Min: settings.MinDeposit, Max: settings.MaxDeposit}
		},
		AbortOnInvalidAmount: true,
		TTL:                  cfg.WizardTTL,
	}, logger, metricRegistry)

	tgClient, err := tg.New(tg.Config{
		Token:   cfg.BotToken,
		Debug:   cfg.AppEnv == "development" && cfg.LogLevel == "debug",
		Metrics: metricRegistry,
	}, logger)
	if err != nil {
		return fmt.Errorf("init telegram client: %w", err)
	}
	defer tgClient.Close()

	pending := bot.NewPendingStore(redisClient, logger)
	engine := bot.New(bot.EngineConfig{
		OwnerID: cfg.OwnerID,
	}, logger, metricRegistry, store, wizardStore, providerClient, tgClient, pending, auditStore)
	tgClient.SetUpdateProcessor(engine)

	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				wizardStore.SweepExpired(now, cfg.WizardTTL)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ok, message := providerClient.TestConnection(ctx); !ok {
					logger.Warn("provider health check failed", "detail", message)
				}
			}
		}
	}()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, httpserver.Dependencies{
		Journal:  store,
		Provider: providerClient,
	}, "")

	errCh := make(chan error, 2)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := tgClient.Start(ctx); err != nil {
			errCh <- fmt.Errorf("telegram client: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
