package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGINIndexes creates full-text search GIN indexes over project specs
// and task descriptions; no query in this module uses them yet. Unlike
// TARSy's ent-schema-driven migrations, YokeFlow's migrations are plain SQL
// (see pkg/database/migrations/*.sql), so this runs directly against
// *sql.DB rather than an ORM dialect driver.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_projects_source_spec_gin
		ON projects USING gin(to_tsvector('english', source_spec))`)
	if err != nil {
		return fmt.Errorf("failed to create source_spec GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_description_gin
		ON tasks USING gin(to_tsvector('english', description))`)
	if err != nil {
		return fmt.Errorf("failed to create task description GIN index: %w", err)
	}

	return nil
}
