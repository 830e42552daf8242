package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "Environment variable exists",
			key:        "TEST_KEY_EXISTS",
			defaultVal: "default",
			envValue:   "custom_value",
			want:       "custom_value",
		},
		{
			name:       "Environment variable does not exist",
			key:        "TEST_KEY_NOT_EXISTS",
			defaultVal: "default_value",
			want:       "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultVal))
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal int
		envValue   string
		want       int
	}{
		{"Valid integer", "TEST_INT_VALID", 0, "42", 42},
		{"Invalid integer", "TEST_INT_INVALID", 10, "not_a_number", 10},
		{"Empty value", "TEST_INT_EMPTY", 5, "", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnvAsInt(tt.key, tt.defaultVal))
		})
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "cache:6380")
	t.Setenv("REDIS_DB", "3")

	opts := OptionsFromEnv()
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 100, opts.PoolSize)
}

func TestNew_Unreachable(t *testing.T) {
	opts := Options{Addr: "127.0.0.1:1", PoolSize: 1, DialTimeout: 200 * time.Millisecond}

	svc, err := New(context.Background(), opts, nil)
	assert.Error(t, err)
	assert.Nil(t, svc)
}

func TestService_Health(t *testing.T) {
	if testing.Short() || os.Getenv("SKIP_INTEGRATION") != "" {
		t.Skip("integration tests disabled")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	svc, err := New(ctx, Options{Addr: fmt.Sprintf("%s:%s", host, port.Port()), PoolSize: 5, DialTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	stats := svc.Health()
	assert.Equal(t, "up", stats["status"])
	assert.Equal(t, "Redis is healthy", stats["message"])

	require.NoError(t, svc.Close())
	assert.Equal(t, "down", svc.Health()["status"])
}

func TestService_Interface(t *testing.T) {
	var _ Service = (*service)(nil)
}
