//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khelzone/platform/internal/app"
	"github.com/khelzone/platform/internal/auth"
	"github.com/khelzone/platform/internal/infra"
)

const (
	TestJWTSecret     = "integration-test-secret-at-least-32-chars"
	TestGatewaySecret = "gw_test_integration_secret"
	TestDBHost        = "localhost"
	TestDBPort        = 5435
	TestDBUser        = "arena"
	TestDBPass        = "arena"
	TestDBName        = "arena_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "arena")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}

	return nil
}

func runMigrations() error {
	migratePath := fmt.Sprintf("file://%s/db/migrations", findProjectRoot())

	m, err := newMigrate(migratePath, testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err.Error() != "no change" {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func findProjectRoot() string {
	dir, _ := os.Getwd()
	for dir != "/" && dir != "." {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return "."
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

func testConfig() *infra.Config {
	return &infra.Config{
		JWTSecret:          TestJWTSecret,
		GatewaySecret:      TestGatewaySecret,
		CORSAllowedOrigins: "*",

		EntryFeeMax:   1000000,
		DepositMin:    1000,
		DepositMax:    5000000,
		WithdrawalMin: 10000,

		MatchmakerTick:      100 * time.Millisecond,
		AutoStartDelay:      50 * time.Millisecond,
		RoomGracePeriod:     time.Minute,
		DisconnectGrace:     time.Second,
		RegistryCleanupTick: time.Minute,
		FastLudoTimer2P:     5 * time.Minute,
		FastLudoTimerMulti:  10 * time.Minute,
		MemoryTurnTimer:     15 * time.Second,
		MemoryLifelines:     3,
		MemoryPairs:         15,
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router and test DB. Background components (matchmaker sweep, outbox
// poller) are not started; tests drive the HTTP surface directly.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)

	jwtMgr := auth.NewJWTManager(TestJWTSecret, 24*time.Hour, 8*time.Hour)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	a := app.NewApp(app.Deps{
		Pool:   pool,
		JWTMgr: jwtMgr,
		Config: testConfig(),
		Logger: logger,
	})

	server := httptest.NewServer(a.Router)

	env := &TestEnv{
		Server: server,
		Pool:   pool,
		JWTMgr: jwtMgr,
		t:      t,
	}

	t.Cleanup(func() {
		a.Rooms.Shutdown()
		server.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
