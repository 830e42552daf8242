package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/kafka-go"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"crashround/internal/auth"
	"crashround/internal/cache"
	"crashround/internal/config"
	"crashround/internal/database"
	"crashround/internal/game"
	"crashround/internal/logger"
	"crashround/internal/server"
	"crashround/internal/wallet"
)

const (
	PortFName      = "port"
	BackendFName   = "backend"
	CountdownFName = "countdown"
)

func main() {
	app := cli.NewApp()
	app.Name = "crash-api"
	app.Usage = "crash round engine with websocket and REST transport"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: PortFName, Usage: "HTTP port, overrides PORT"},
		cli.StringFlag{Name: BackendFName, Usage: "balance store: redis, postgres or memory"},
		cli.IntFlag{Name: CountdownFName, Usage: "countdown seconds before a round runs"},
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
	if c.IsSet(PortFName) {
		cfg.HTTPPort = c.String(PortFName)
	}
	if c.IsSet(BackendFName) {
		cfg.BalanceBackend = c.String(BackendFName)
	}
	if c.IsSet(CountdownFName) {
		cfg.CountdownSeconds = c.Int(CountdownFName)
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := game.NewMetrics(reg)

	var retry wallet.RetryQueue = wallet.NewLogRetryQueue(log.Named("retry"))
	if cfg.KafkaEnabled() {
		writer := wallet.NewCreditWriter(cfg.KafkaBrokers, cfg.CreditTopic)
		defer closeWriter(writer, log)
		retry = wallet.NewKafkaRetryQueue(writer)
		log.Info("failed credits go to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.CreditTopic))
	}

	hub := game.NewHub(log, metrics)
	engine := game.NewEngine(backend.gateway, hub,
		game.WithConfig(cfg.Engine()),
		game.WithMetrics(metrics),
		game.WithRetryQueue(retry),
		game.WithLogger(log),
	)
	go hub.Run(ctx)
	engine.Start(ctx)

	opts := server.Options{
		Engine:       engine,
		Hub:          hub,
		Gateway:      backend.gateway,
		Verifier:     auth.NewVerifier(cfg.JWTSecret),
		DB:           backend.db,
		Cache:        backend.cache,
		Logger:       log,
		CORSOrigins:  cfg.CORSOrigins,
		RateLimitMax: cfg.RateLimitMax,
	}
	if cfg.MetricsEnabled {
		opts.Gatherer = reg
	}
	srv := server.New(opts)
	srv.RegisterFiberRoutes()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("port", cfg.HTTPPort), zap.String("backend", cfg.BalanceBackend))
		errCh <- srv.Listen(":" + cfg.HTTPPort)
	}()

	signalListen(errCh, log)

	// Open bets are refunded before the balance store is closed.
	engine.Stop()
	if err := srv.Shutdown(); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	cancel()
	log.Info("stopped")
	return nil
}

type backend struct {
	gateway wallet.Gateway
	db      database.Service
	cache   cache.Service
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (backend, error) {
	switch cfg.BalanceBackend {
	case config.BackendPostgres:
		db, err := database.New()
		if err != nil {
			return backend{}, fmt.Errorf("postgres: %w", err)
		}
		return backend{gateway: wallet.NewPostgres(db.Pool()), db: db}, nil

	case config.BackendMemory:
		log.Warn("balances are kept in memory and lost on restart")
		return backend{gateway: wallet.NewMemoryWithOpening(cfg.OpeningBalance)}, nil

	default:
		svc, err := cache.New(ctx, cache.OptionsFromEnv(), log)
		if err != nil {
			return backend{}, err
		}
		return backend{gateway: wallet.NewRedis(svc.GetClient()), cache: svc}, nil
	}
}

func closeWriter(w *kafka.Writer, log *zap.Logger) {
	if err := w.Close(); err != nil {
		log.Warn("close kafka writer", zap.Error(err))
	}
}

// signalListen blocks until a stop signal arrives or the listener fails.
func signalListen(errCh <-chan error, log *zap.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-c:
		log.Info("stop signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("listener stopped", zap.Error(err))
		}
	}
}
