package wallet

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"crashround/internal/database"
)

// skipWithoutDocker skips instead of panicking when no Docker host can be
// found.
func skipWithoutDocker(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("SKIP_INTEGRATION") != "" {
		t.Skip("integration tests disabled")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipWithoutDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:latest",
		postgres.WithDatabase("crash"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.RunMigrations(database.OpenSQL(pool), "../../migrations"))
	return pool
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	skipWithoutDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func createUser(t *testing.T, pool *pgxpool.Pool, name string, balance float64) string {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (username, password, balance) VALUES ($1, 'x', $2) RETURNING id`,
		name, balance).Scan(&id)
	require.NoError(t, err)
	return strconv.FormatInt(id, 10)
}

// exerciseGateway runs the behaviour every balance store must share.
func exerciseGateway(t *testing.T, gw Gateway, userID, otherID string) {
	ctx := context.Background()

	bal, err := gw.Debit(ctx, userID, 40)
	require.NoError(t, err)
	assert.InDelta(t, 60, bal, 1e-9)

	_, err = gw.Debit(ctx, userID, 61)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = gw.Debit(ctx, otherID, 1)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	c := Credit{RoundID: "round-1", UserID: userID, Amount: 150}
	bal, err = gw.Credit(ctx, c)
	require.NoError(t, err)
	assert.InDelta(t, 210, bal, 1e-9)

	bal, err = gw.Credit(ctx, c)
	require.NoError(t, err)
	assert.InDelta(t, 210, bal, 1e-9)

	// Concurrent debits never overdraw.
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gw.Debit(ctx, userID, 50); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, accepted)

	bal, err = gw.Balance(ctx, userID)
	require.NoError(t, err)
	assert.InDelta(t, 10, bal, 1e-9)
}

func TestPostgresGateway(t *testing.T) {
	pool := startPostgres(t)
	userID := createUser(t, pool, "alice", 100)

	exerciseGateway(t, NewPostgres(pool), userID, "999999")

	_, err := NewPostgres(pool).Credit(context.Background(), Credit{RoundID: "r", UserID: "999999", Amount: 1})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRedisGateway(t *testing.T) {
	client := startRedis(t)
	gw := NewRedis(client)
	require.NoError(t, gw.SetBalance(context.Background(), "1", 100))

	exerciseGateway(t, gw, "1", "2")
}
