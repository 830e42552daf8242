package game

import (
	"time"

	"go.uber.org/zap"

	"crashround/internal/clock"
	"crashround/internal/wallet"
)

const (
	COUNTDOWN_SECONDS  = 10
	COUNTDOWN_INTERVAL = 1 * time.Second
	TICK_INTERVAL      = 100 * time.Millisecond
	MIN_BETS_TO_START  = 2
	BET_TIMEOUT        = 5 * time.Second
	CASHOUT_TIMEOUT    = 500 * time.Millisecond
	GATEWAY_TIMEOUT    = 3 * time.Second
	CREDIT_CONCURRENCY = 8
	QUEUE_SIZE         = 1000
)

type Config struct {
	CountdownSeconds  int
	CountdownInterval time.Duration
	TickInterval      time.Duration
	MinBetsToStart    int
	CommissionRate    float64
	// MaxBetAmount caps a single bet; zero disables the cap.
	MaxBetAmount      float64
	BetTimeout        time.Duration
	CashoutTimeout    time.Duration
	GatewayTimeout    time.Duration
	CreditConcurrency int
	QueueSize         int
}

func DefaultConfig() Config {
	return Config{
		CountdownSeconds:  COUNTDOWN_SECONDS,
		CountdownInterval: COUNTDOWN_INTERVAL,
		TickInterval:      TICK_INTERVAL,
		MinBetsToStart:    MIN_BETS_TO_START,
		CommissionRate:    DEFAULT_COMMISSION_RATE,
		BetTimeout:        BET_TIMEOUT,
		CashoutTimeout:    CASHOUT_TIMEOUT,
		GatewayTimeout:    GATEWAY_TIMEOUT,
		CreditConcurrency: CREDIT_CONCURRENCY,
		QueueSize:         QUEUE_SIZE,
	}
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithScheduler(s clock.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

func WithSampler(s CrashSampler) Option {
	return func(e *Engine) { e.sampler = s }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithRetryQueue(q wallet.RetryQueue) Option {
	return func(e *Engine) { e.retry = q }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}
