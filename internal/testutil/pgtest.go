// Package testutil holds helpers shared by the database-backed tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PGTest hands a test a migrated PostgreSQL database and a cleanup
// function that truncates every table it touched:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// With POSTGRES_URL set the test reuses that database. Without it a
// throwaway container is started; PGTEST_SKIP_CONTAINER skips instead
// for machines that have no Docker.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	dbURL := os.Getenv("POSTGRES_URL")
	var terminate func()
	if dbURL == "" {
		if os.Getenv("PGTEST_SKIP_CONTAINER") != "" {
			t.Skip("POSTGRES_URL not set and PGTEST_SKIP_CONTAINER set, skipping integration test")
		}
		dbURL, terminate = startContainer(t, ctx)
	}

	db := openAndPing(t, dbURL, terminate)

	goose.SetLogger(goose.NopLogger())
	if err := goose.UpContext(ctx, db, migrationsDir(t)); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		resetTables(ctx, db)
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
	}

	return db, cleanup
}

func openAndPing(t *testing.T, dbURL string, terminate func()) *sql.DB {
	t.Helper()

	fail := func(format string, args ...any) {
		if terminate != nil {
			terminate()
		}
		t.Fatalf("pgtest: "+format, args...)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		fail("open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		fail("connect to database: %v", err)
	}
	return db
}

// startContainer boots a disposable postgres container for the test run.
func startContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("trustline_test"),
		tcpostgres.WithUsername("trustline"),
		tcpostgres.WithPassword("trustline"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("pgtest: could not start postgres container: %v", err)
	}

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("pgtest: connection string: %v", err)
	}

	return dbURL, func() { _ = container.Terminate(ctx) }
}

// migrationsDir locates the repository's migrations/ directory by
// walking up from wherever `go test` put the working directory.
func migrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}

	for dir != filepath.Dir(dir) {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("pgtest: no migrations/ directory above the test working directory")
	return ""
}

// resetTables empties every application table so the next test starts
// from a blank database. Goose bookkeeping is left alone.
func resetTables(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND tablename NOT LIKE 'pg_%'
		  AND tablename NOT LIKE 'sql_%'
		  AND tablename <> 'goose_db_version'
	`)
	if err != nil {
		return
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	if len(tables) == 0 {
		return
	}

	// Table names come straight from pg_tables, not from callers.
	stmt := fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(tables, ", ")) // #nosec G202
	_, _ = db.ExecContext(ctx, stmt)                                      // #nosec G104 -- best-effort cleanup
}
