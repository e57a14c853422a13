package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one named schema step. Versions are timestamps and sort
// lexically in the order the steps must run.
type migration struct {
	Version    string
	Name       string
	Statements []string
}

// migrations is the ordered history of the schema. Applied versions are
// recorded in schema_migrations and never run twice; append new steps,
// never edit applied ones.
var migrations = []migration{
	{
		Version: "20261001090000",
		Name:    "create_directory_tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id         BIGSERIAL PRIMARY KEY,
				name       TEXT NOT NULL,
				email      TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS languages (
				id   BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE
			)`,
			`CREATE TABLE IF NOT EXISTS user_languages (
				user_id     BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
				language_id BIGINT NOT NULL REFERENCES languages (id) ON DELETE CASCADE,
				PRIMARY KEY (user_id, language_id)
			)`,
		},
	},
	{
		Version: "20261001090100",
		Name:    "create_jobs_table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS jobs (
				id               BIGSERIAL PRIMARY KEY,
				requester_id     BIGINT NOT NULL REFERENCES users (id),
				translator_id    BIGINT REFERENCES users (id),
				language_id      BIGINT NOT NULL REFERENCES languages (id),
				status           TEXT NOT NULL CHECK (status IN ('pending', 'assigned', 'completed', 'canceled')),
				due_at           TIMESTAMPTZ NOT NULL,
				duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
				cancelled_by     BIGINT REFERENCES users (id),
				completed_at     TIMESTAMPTZ,
				version          BIGINT NOT NULL DEFAULT 1,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_requester ON jobs (requester_id)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_pending_language ON jobs (language_id) WHERE status = 'pending'`,
		},
	},
}

const (
	queryCreateMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	queryAppliedMigrations = `SELECT version FROM schema_migrations`
	queryRecordMigration   = `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
)

// pendingMigrations returns the steps not yet in applied, in order.
func pendingMigrations(all []migration, applied map[string]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// migrateLockKey serialises Migrate across replicas starting together.
const migrateLockKey int64 = 0x65626b67

// Migrate applies every migration not yet recorded in schema_migrations.
// All of it runs in one transaction under an advisory lock so concurrent
// instances do not race on catalog rows.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrateLockKey); err != nil {
		return fmt.Errorf("migrate: lock %d: %w", migrateLockKey, err)
	}
	if _, err := tx.ExecContext(ctx, queryCreateMigrationsTable); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, tx)
	if err != nil {
		return err
	}

	for _, m := range pendingMigrations(migrations, applied) {
		for i, stmt := range m.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate %s_%s step %d: %w", m.Version, m.Name, i+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, queryRecordMigration, m.Version, m.Name); err != nil {
			return fmt.Errorf("migrate %s_%s: record: %w", m.Version, m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, queryAppliedMigrations)
	if err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("migrate: scan applied: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	return applied, nil
}
