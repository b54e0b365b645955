//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sungwon/notification-pipeline/internal/storage"
)

var (
	sharedDB  *storage.DB
	sharedDSN string
)

// TestMain starts one PostgreSQL container, applies the migrations, and
// shares the pool across the package's integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, dsn, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container: %v\n", err)
		os.Exit(1)
	}
	sharedDSN = dsn

	sharedDB, err = storage.Open(ctx, storage.Config{URL: dsn, MinConns: 1, MaxConns: 8})
	if err == nil {
		err = applyMigrations(ctx, sharedDB)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare database: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	sharedDB.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "terminate container: %v\n", err)
	}
	os.Exit(code)
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "notify",
				"POSTGRES_PASSWORD": "notify",
				"POSTGRES_DB":       "notify",
			},
			// The server logs readiness twice: once for the init run and once
			// for the real start.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", err
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", err
	}
	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", err
	}
	return c, fmt.Sprintf("postgres://notify:notify@%s:%s/notify?sslmode=disable", host, port.Port()), nil
}

// applyMigrations runs every *.up.sql under the repository's migrations
// directory in name order.
func applyMigrations(ctx context.Context, db *storage.DB) error {
	_, self, _, _ := runtime.Caller(0)
	files, err := filepath.Glob(filepath.Join(filepath.Dir(self), "..", "..", "migrations", "*.up.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found")
	}
	sort.Strings(files)

	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

// setupTestDB returns the shared DB and a UserRepository over it. Each test
// starts from an empty users table.
func setupTestDB(t *testing.T) (*storage.DB, *storage.UserRepository) {
	t.Helper()
	if _, err := sharedDB.Pool.Exec(context.Background(), "TRUNCATE users"); err != nil {
		t.Fatalf("truncate users: %v", err)
	}
	return sharedDB, storage.NewUserRepository(sharedDB)
}

func insertUser(t *testing.T, db *storage.DB, u storage.User) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(),
		"INSERT INTO users (id, email, name, locale) VALUES ($1, $2, $3, $4)",
		u.ID, u.Email, u.Name, u.Locale)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}
