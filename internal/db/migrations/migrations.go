package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// Migration is one versioned schema change
type Migration struct {
	ID        string
	Name      string
	UpSQL     string
	DownSQL   string
	CreatedAt time.Time
}

// All returns every migration in the order it must be applied
func All() []*Migration {
	return []*Migration{
		RideSchema,
		RetentionPolicies,
	}
}

// Migrator applies and rolls back migrations, recording them in the
// migrations table
type Migrator struct {
	db *sql.DB
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize() error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// GetAppliedMigrations returns the names of applied migrations
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT name FROM migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Printf("Error closing migration rows: %v", cerr)
		}
	}()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Pending returns the migrations of list that have not been applied yet
func (m *Migrator) Pending(list []*Migration) ([]*Migration, error) {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var pending []*Migration
	for _, migration := range list {
		if !applied[migration.Name] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// run executes a migration script and its bookkeeping in one transaction
func (m *Migrator) run(migration *Migration, script, recordQuery string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("Warning: failed to rollback migration %s: %v", migration.Name, err)
		}
	}()

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}

	if _, err := tx.Exec(recordQuery, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	return tx.Commit()
}

// ApplyMigration applies a single migration
func (m *Migrator) ApplyMigration(migration *Migration) error {
	return m.run(migration, migration.UpSQL, "INSERT INTO migrations (name) VALUES ($1)")
}

// RollbackMigration rolls back a single migration
func (m *Migrator) RollbackMigration(migration *Migration) error {
	return m.run(migration, migration.DownSQL, "DELETE FROM migrations WHERE name = $1")
}

// Migrate applies all pending migrations in order and returns how many
// were applied
func (m *Migrator) Migrate(list []*Migration) (int, error) {
	if err := m.Initialize(); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	pending, err := m.Pending(list)
	if err != nil {
		return 0, err
	}

	for i, migration := range pending {
		if err := m.ApplyMigration(migration); err != nil {
			return i, fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		log.Printf("Applied migration: %s", migration.Name)
	}

	return len(pending), nil
}

// Rollback rolls back the most recent applied migration of list
func (m *Migrator) Rollback(list []*Migration) (*Migration, error) {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(list) - 1; i >= 0; i-- {
		if applied[list[i].Name] {
			last = list[i]
			break
		}
	}

	if last == nil {
		return nil, fmt.Errorf("no migrations to rollback")
	}

	if err := m.RollbackMigration(last); err != nil {
		return nil, fmt.Errorf("failed to rollback migration %s: %w", last.Name, err)
	}

	log.Printf("Rolled back migration: %s", last.Name)
	return last, nil
}
