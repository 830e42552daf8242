package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/joho/godotenv/autoload"

	"crashround/internal/game"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const localJWTSecret = "local-development-secret"

// Config holds the process settings read from the environment.
type Config struct {
	Env         string // "local", "dev", "prod"
	ServiceName string

	HTTPPort     string
	CORSOrigins  string
	RateLimitMax int
	JWTSecret    string

	// BalanceBackend selects the wallet adapter: redis, postgres or memory.
	BalanceBackend string
	// OpeningBalance funds unknown accounts of the memory backend.
	OpeningBalance float64

	KafkaBrokers []string
	CreditTopic  string
	CreditGroup  string

	MetricsEnabled bool

	CountdownSeconds  int
	MinBetsToStart    int
	CommissionRate    float64
	MaxBetAmount      float64
	CreditConcurrency int
}

func Load() (Config, error) {
	env := getEnv("ENV", "local")
	cfg := Config{
		Env:            env,
		ServiceName:    getEnv("SERVICE_NAME", "crash-api"),
		HTTPPort:       getEnv("PORT", "8080"),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		BalanceBackend: strings.ToLower(getEnv("BALANCE_BACKEND", BackendRedis)),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		CreditTopic:    getEnv("KAFKA_CREDIT_TOPIC", "settlement-credits"),
		CreditGroup:    getEnv("KAFKA_CREDIT_GROUP", "credit-worker"),
	}

	var errs []error
	cfg.RateLimitMax = getEnvInt("RATE_LIMIT_MAX", 100, &errs)
	cfg.OpeningBalance = getEnvFloat("OPENING_BALANCE", 1000, &errs)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", true, &errs)
	cfg.CountdownSeconds = getEnvInt("COUNTDOWN_SECONDS", game.COUNTDOWN_SECONDS, &errs)
	cfg.MinBetsToStart = getEnvInt("MIN_BETS_TO_START", game.MIN_BETS_TO_START, &errs)
	cfg.CommissionRate = getEnvFloat("COMMISSION_RATE", game.DEFAULT_COMMISSION_RATE, &errs)
	cfg.MaxBetAmount = getEnvFloat("MAX_BET_AMOUNT", 0, &errs)
	cfg.CreditConcurrency = getEnvInt("CREDIT_CONCURRENCY", game.CREDIT_CONCURRENCY, &errs)

	if cfg.JWTSecret == "" {
		if env == "local" {
			cfg.JWTSecret = localJWTSecret
		} else {
			errs = append(errs, errors.New("JWT_SECRET is required outside local"))
		}
	}
	switch cfg.BalanceBackend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("BALANCE_BACKEND %q: want redis, postgres or memory", cfg.BalanceBackend))
	}
	if cfg.CommissionRate < 0 || cfg.CommissionRate >= 1 {
		errs = append(errs, fmt.Errorf("COMMISSION_RATE %v: want [0, 1)", cfg.CommissionRate))
	}
	if cfg.CountdownSeconds < 1 {
		errs = append(errs, fmt.Errorf("COUNTDOWN_SECONDS %d: want at least 1", cfg.CountdownSeconds))
	}
	if cfg.MinBetsToStart < 1 {
		errs = append(errs, fmt.Errorf("MIN_BETS_TO_START %d: want at least 1", cfg.MinBetsToStart))
	}
	if cfg.CreditConcurrency < 1 {
		errs = append(errs, fmt.Errorf("CREDIT_CONCURRENCY %d: want at least 1", cfg.CreditConcurrency))
	}

	return cfg, errors.Join(errs...)
}

// Engine returns the round engine settings.
func (c Config) Engine() game.Config {
	ec := game.DefaultConfig()
	ec.CountdownSeconds = c.CountdownSeconds
	ec.MinBetsToStart = c.MinBetsToStart
	ec.CommissionRate = c.CommissionRate
	ec.MaxBetAmount = c.MaxBetAmount
	ec.CreditConcurrency = c.CreditConcurrency
	return ec
}

// KafkaEnabled reports whether failed credits go to Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int, errs *[]error) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getEnvFloat(key string, def float64, errs *[]error) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func getEnvBool(key string, def bool, errs *[]error) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
