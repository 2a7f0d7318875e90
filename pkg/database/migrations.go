package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates a trigram GIN index on threads.title so the
// ILIKE-based title search in thread/syncstore stays fast as the table
// grows. Requires the pg_trgm extension, created here if missing.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`); err != nil {
		return fmt.Errorf("failed to create pg_trgm extension: %w", err)
	}

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_threads_title_trgm
		ON threads USING gin (title gin_trgm_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create threads title trigram index: %w", err)
	}

	return nil
}

// CreatePartialUniqueIndexes creates indexes that ent's schema DSL cannot
// express: uniqueness scoped to a WHERE condition. organizations.slug must
// stay unique only among live orgs, so a soft-deleted org's slug can be
// reclaimed by a new signup immediately rather than staying blocked for the
// 90-day restore grace window (see ent/schema/organization.go).
func CreatePartialUniqueIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_slug_active
		ON organizations(slug) WHERE deleted_at IS NULL`)
	if err != nil {
		return fmt.Errorf("failed to create organizations slug partial unique index: %w", err)
	}

	return nil
}
