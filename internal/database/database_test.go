package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "database"
		dbPwd  = "password"
		dbUser = "user"
	)

	// Create context with timeout to prevent hanging
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	database = dbName
	password = dbPwd
	username = dbUser

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	host = dbHost
	port = dbPort.Port()

	return dbContainer.Terminate, err
}

// containerReady is set by TestMain when a Postgres container is running.
var containerReady bool

func TestMain(m *testing.M) {
	var teardown func(context.Context, ...testcontainers.TerminateOption) error
	if os.Getenv("SKIP_INTEGRATION") == "" && isDockerAvailable() {
		var err error
		teardown, err = mustStartPostgresContainer()
		containerReady = err == nil
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres container not started: %v\n", err)
		}
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

// isDockerAvailable reports false instead of panicking when testcontainers
// cannot find a Docker host.
func isDockerAvailable() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	return provider.Health(ctx) == nil
}

func mustNew(t *testing.T) Service {
	t.Helper()
	if !containerReady {
		t.Skip("postgres container not available")
	}
	srv, err := New()
	require.NoError(t, err, "New() returned error")
	return srv
}

func TestNew(t *testing.T) {
	srv := mustNew(t)
	require.NotNil(t, srv.Pool(), "New() returned a service without a pool")
}

func TestHealth(t *testing.T) {
	srv := mustNew(t)

	stats := srv.Health()

	assert.Equal(t, "up", stats["status"])
	assert.NotContains(t, stats, "error")
	assert.Equal(t, "It's healthy", stats["message"])
}

func TestMigrations(t *testing.T) {
	srv := mustNew(t)
	db := OpenSQL(srv.Pool())

	require.NoError(t, RunMigrations(db, "../../migrations"))
	// A second run has nothing to apply.
	require.NoError(t, RunMigrations(db, "../../migrations"), "second run")

	version, dirty, err := GetMigrationVersion(db, "../../migrations")
	require.NoError(t, err)
	assert.False(t, dirty, "expected a clean migration state")
	assert.Equal(t, uint(2), version)

	var exists bool
	err = srv.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'settlement_credits')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "settlement_credits table missing")
}

func TestDSN(t *testing.T) {
	dsn := DSN()
	assert.Regexp(t, `^postgres://`, dsn)
	assert.Contains(t, dsn, "search_path="+schema)
}

func TestClose(t *testing.T) {
	srv := mustNew(t)
	assert.NoError(t, srv.Close())
}
