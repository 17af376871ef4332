// Package testdb locates and prepares the PostgreSQL database used by
// integration tests. Outside CI a missing database skips the test; in CI
// it fails, so a misconfigured pipeline cannot silently skip coverage.
package testdb

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"

	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/platform/postgres"
	"github.com/phrazzld/goalq/internal/platform/sqlstore"
	"github.com/phrazzld/goalq/internal/redact"
)

// Environment variables consulted, in order of preference.
const (
	EnvTestDatabaseURL = "GOALQ_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

var ciMarkers = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI", "BUILDKITE"}

// IsCI reports whether the process runs under a CI system.
func IsCI() bool {
	for _, name := range ciMarkers {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// URL returns the first configured database URL, or "".
func URL(log *slog.Logger) string {
	if log == nil {
		log = logger.Discard()
	}
	for i, name := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		if i > 0 {
			log.Warn("using fallback database variable",
				slog.String("used_var", name),
				slog.String("preferred_var", EnvTestDatabaseURL),
				slog.String("value", redact.String(val)))
		}
		return val
	}
	return ""
}

// Open connects to the test database and applies all migrations. The
// connection is closed when the test ends.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := URL(nil)
	if url == "" {
		if IsCI() {
			t.Fatalf("%s must be set in CI", EnvTestDatabaseURL)
		}
		t.Skipf("%s not set", EnvTestDatabaseURL)
	}

	ctx := context.Background()
	log := logger.Discard()
	db, err := postgres.Open(ctx, url, log)
	if err != nil {
		t.Fatalf("failed to open test database %s: %v", redact.String(url), err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := sqlstore.Migrate(ctx, db, postgres.Dialect(), log); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// Truncate empties the tasks table.
func Truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), `TRUNCATE tasks`); err != nil {
		t.Fatalf("failed to truncate tasks: %v", err)
	}
}
