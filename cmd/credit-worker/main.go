package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"crashround/internal/cache"
	"crashround/internal/config"
	"crashround/internal/database"
	"crashround/internal/logger"
	"crashround/internal/wallet"
)

const BackendFName = "backend"

// credit-worker re-applies settlement credits that failed during a round.
func main() {
	app := cli.NewApp()
	app.Name = "credit-worker"
	app.Usage = "apply queued settlement credits to the balance store"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: BackendFName, Usage: "balance store: redis or postgres"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.IsSet(BackendFName) {
		cfg.BalanceBackend = c.String(BackendFName)
	}
	if !cfg.KafkaEnabled() {
		return errors.New("KAFKA_BROKERS is required")
	}

	log, err := logger.New("credit-worker", cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gateway wallet.Gateway
	switch cfg.BalanceBackend {
	case config.BackendPostgres:
		db, err := database.New()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()
		gateway = wallet.NewPostgres(db.Pool())
	case config.BackendRedis:
		svc, err := cache.New(ctx, cache.OptionsFromEnv(), log)
		if err != nil {
			return err
		}
		defer svc.Close()
		gateway = wallet.NewRedis(svc.GetClient())
	default:
		return fmt.Errorf("backend %q has no durable balances to credit", cfg.BalanceBackend)
	}

	reader := wallet.NewCreditReader(cfg.KafkaBrokers, cfg.CreditTopic, cfg.CreditGroup)
	defer reader.Close()

	log.Info("credit worker started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.CreditTopic),
		zap.String("group", cfg.CreditGroup),
		zap.String("backend", cfg.BalanceBackend),
	)

	worker := wallet.NewRetryWorker(reader, gateway, log.Named("retry"))
	if err := worker.Run(ctx); err != nil {
		return err
	}
	log.Info("credit worker stopped")
	return nil
}
