package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationStatus is one row of `goalq migrate status`.
type MigrationStatus struct {
	Version int64
	Source  string
	Applied bool
}

func newProvider(db *sql.DB, d Dialect) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationsFS, "migrations/"+d.Name)
	if err != nil {
		return nil, fmt.Errorf("no migrations for dialect %s: %w", d.Name, err)
	}
	return goose.NewProvider(d.Goose, db, sub)
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, log *slog.Logger) error {
	provider, err := newProvider(db, d)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		log.Info("applied migration",
			slog.Int64("version", r.Source.Version),
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration))
	}
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, db *sql.DB, d Dialect, log *slog.Logger) error {
	provider, err := newProvider(db, d)
	if err != nil {
		return err
	}

	r, err := provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	log.Info("rolled back migration",
		slog.Int64("version", r.Source.Version),
		slog.String("source", r.Source.Path))
	return nil
}

// Status reports every known migration and whether it is applied.
func Status(ctx context.Context, db *sql.DB, d Dialect) ([]MigrationStatus, error) {
	provider, err := newProvider(db, d)
	if err != nil {
		return nil, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Source:  s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
