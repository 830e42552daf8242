package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crashround/internal/game"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "SERVICE_NAME", "PORT", "CORS_ORIGINS", "RATE_LIMIT_MAX", "JWT_SECRET",
		"BALANCE_BACKEND", "OPENING_BALANCE", "KAFKA_BROKERS", "KAFKA_CREDIT_TOPIC",
		"KAFKA_CREDIT_GROUP", "METRICS_ENABLED", "COUNTDOWN_SECONDS", "MIN_BETS_TO_START",
		"COMMISSION_RATE", "MAX_BET_AMOUNT", "CREDIT_CONCURRENCY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, BackendRedis, cfg.BalanceBackend)
	assert.Equal(t, localJWTSecret, cfg.JWTSecret)
	assert.False(t, cfg.KafkaEnabled())
	assert.True(t, cfg.MetricsEnabled)

	ec := cfg.Engine()
	assert.Equal(t, game.COUNTDOWN_SECONDS, ec.CountdownSeconds)
	assert.Equal(t, game.MIN_BETS_TO_START, ec.MinBetsToStart)
	assert.Equal(t, game.DEFAULT_COMMISSION_RATE, ec.CommissionRate)
	assert.Equal(t, game.TICK_INTERVAL, ec.TickInterval)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "prod")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("BALANCE_BACKEND", "Postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("COUNTDOWN_SECONDS", "5")
	t.Setenv("COMMISSION_RATE", "0.05")
	t.Setenv("MAX_BET_AMOUNT", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.BalanceBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())

	ec := cfg.Engine()
	assert.Equal(t, 5, ec.CountdownSeconds)
	assert.Equal(t, 0.05, ec.CommissionRate)
	assert.Equal(t, 500.0, ec.MaxBetAmount)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret outside local", map[string]string{"ENV": "prod"}, "JWT_SECRET"},
		{"unknown backend", map[string]string{"BALANCE_BACKEND": "mongo"}, "BALANCE_BACKEND"},
		{"malformed number", map[string]string{"COUNTDOWN_SECONDS": "ten"}, "COUNTDOWN_SECONDS"},
		{"commission out of range", map[string]string{"COMMISSION_RATE": "1.5"}, "COMMISSION_RATE"},
		{"no bets to start", map[string]string{"MIN_BETS_TO_START": "0"}, "MIN_BETS_TO_START"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ENV", "local")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
