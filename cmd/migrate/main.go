// Command migrate applies the schema migrations for the auth service.
// Connection settings come from the same environment variables the service
// reads; the applied version is tracked in the schema_migrations table.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/taskora/taskora/backend/internal/config"
)

func main() {
	path := flag.String("path", "migrations", "Path to the migrations directory")
	lockTimeout := flag.Duration("lock-timeout", 5*time.Minute, "Advisory lock timeout")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	m, err := open(cfg.Database.DSN(), *path, *lockTimeout)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer m.Close()

	if err := run(m, args[0], args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <up [N] | down [N] | version>\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Connection settings come from DB_HOST, DB_PORT, DB_USER, DB_PASSWORD,\n")
	fmt.Fprintf(os.Stderr, "DB_NAME and DB_SSLMODE.\n\nOptions:\n")
	flag.PrintDefaults()
}

func run(m *migrate.Migrate, cmd string, args []string) error {
	switch cmd {
	case "up", "down":
		steps, err := stepCount(args)
		if err != nil {
			return err
		}
		if cmd == "down" {
			steps = -steps
		}
		return apply(m, cmd, steps)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("No migrations applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		if dirty {
			log.Printf("Version %d (dirty)", version)
		} else {
			log.Printf("Version %d", version)
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// stepCount parses the optional step argument; zero means all.
func stepCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return steps, nil
}

func apply(m *migrate.Migrate, direction string, steps int) error {
	before, _, _ := m.Version()

	var err error
	switch {
	case steps != 0:
		err = m.Steps(steps)
	case direction == "up":
		err = m.Up()
	default:
		err = m.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("Nothing to do")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	after, _, _ := m.Version()
	log.Printf("Migrated %d -> %d", before, after)
	return nil
}

func open(dsn, path string, lockTimeout time.Duration) (*migrate.Migrate, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = lockTimeout

	return m, nil
}
