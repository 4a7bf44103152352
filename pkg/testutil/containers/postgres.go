//go:build integration

package containers

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"airdrop/internal/platform/postgres"
)

// PostgresContainer wraps a migrated testcontainers Postgres instance.
type PostgresContainer struct {
	Container *tcpostgres.PostgresContainer
	DSN       string
	DB        *sql.DB
}

var (
	shared     *PostgresContainer
	sharedErr  error
	sharedOnce sync.Once
)

// Postgres returns a process-wide migrated container. The container is shared
// across suites; Ryuk removes it when the test binary exits.
func Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	sharedOnce.Do(func() {
		shared, sharedErr = start(context.Background())
	})
	if sharedErr != nil {
		t.Fatalf("failed to start postgres container: %v", sharedErr)
	}
	return shared
}

func start(ctx context.Context) (*PostgresContainer, error) {
	// Retry container start up to 3 times for retryable errors
	var (
		container *tcpostgres.PostgresContainer
		err       error
	)
	for attempt := 1; attempt <= 3; attempt++ {
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("airdrop"),
			tcpostgres.WithUsername("airdrop"),
			tcpostgres.WithPassword("airdrop"),
			testcontainers.WithWaitStrategy(waitForPostgres()),
		)
		if err == nil {
			break
		}
		if !isRetryable(err) || attempt == 3 {
			return nil, err
		}
		time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	db, err := postgres.Open(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), postgres.Config{
		DSN:     dsn,
		Migrate: true,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &PostgresContainer{Container: container, DSN: dsn, DB: db}, nil
}

// Truncate empties every application table. Use between tests to ensure
// isolation.
func (p *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `TRUNCATE agreements, ledger_accounts, agreement_events`)
	return err
}

func waitForPostgres() *wait.LogStrategy {
	return wait.ForLog("database system is ready to accept connections").
		WithOccurrence(2).
		WithStartupTimeout(60 * time.Second)
}

func isRetryable(err error) bool {
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded")
}
