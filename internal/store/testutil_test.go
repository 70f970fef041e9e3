package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a disposable Postgres container, opens a DB against
// it (which also runs schema creation) and registers cleanup on t.
// Grounded on ChainSafe-canton-middleware/pkg/pgutil.SetupTestDB, adapted
// from bun to this package's plain database/sql + lib/pq connection.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in -short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("degenter_test"),
		postgres.WithUsername("degenter"),
		postgres.WithPassword("degenter"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://degenter:degenter@%s:%s/degenter_test?sslmode=disable", host, port.Port())

	var db *DB
	for i := 0; i < 10; i++ {
		db, err = Open(dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Duration(100*(1<<uint(i))) * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("open test db after retries: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}
