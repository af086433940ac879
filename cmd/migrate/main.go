package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/db/migrations"
)

type options struct {
	dbURL    string
	rollback bool
	status   bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Printf("Migration failed: %v", err)
		os.Exit(1)
	}
}

// parseFlags parses the command line. The database defaults to DB_CONN_STR.
func parseFlags(args []string) (*options, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	opts := &options{}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.dbURL, "db", cfg.DBConnStr, "Database connection string")
	fs.BoolVar(&opts.rollback, "rollback", false, "Rollback the last migration")
	fs.BoolVar(&opts.status, "status", false, "List pending migrations without applying them")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.rollback && opts.status {
		return nil, fmt.Errorf("-rollback and -status are mutually exclusive")
	}
	return opts, nil
}

func run(args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", opts.dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing db: %v\n", err)
		}
	}()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return execute(migrations.New(db), migrations.All(), opts, out)
}

// execute runs the selected migration action
func execute(migrator *migrations.Migrator, list []*migrations.Migration, opts *options, out io.Writer) error {
	switch {
	case opts.rollback:
		migration, err := migrator.Rollback(list)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Rolled back %s\n", migration.Name)

	case opts.status:
		if err := migrator.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}
		pending, err := migrator.Pending(list)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(out, "Database is up to date")
			return nil
		}
		for _, migration := range pending {
			fmt.Fprintf(out, "Pending: %s\n", migration.Name)
		}

	default:
		applied, err := migrator.Migrate(list)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Applied %d migration(s)\n", applied)
	}
	return nil
}
