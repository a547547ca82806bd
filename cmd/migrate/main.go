package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/LeventeLantos/event-messaging/internal/repo"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		log.Fatal("missing required env var: POSTGRES_URL")
	}

	db, err := repo.OpenPostgres(context.Background(), url)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	m, err := repo.NewMigrator(db)
	if err != nil {
		log.Fatalf("init migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Println("no change: database is up to date")
		case err != nil:
			log.Fatalf("migrate up: %v", err)
		default:
			log.Println("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("roll back last migration: %v", err)
		}
		log.Println("last migration rolled back")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatal("goto needs a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("invalid version %q: %v", os.Args[2], err)
		}
		if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate to %d: %v", version, err)
		}
		log.Printf("migrated to version %d", version)

	case "force":
		if len(os.Args) < 3 {
			log.Fatal("force needs a version number")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version %q: %v", os.Args[2], err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("force version %d: %v", version, err)
		}
		log.Printf("forced version %d", version)

	case "status", "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("no migrations applied")
			return
		}
		if err != nil {
			log.Fatalf("read version: %v", err)
		}
		log.Printf("version %d (dirty=%v)", version, dirty)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: migrate <command> [args]")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  up               apply all pending migrations")
	fmt.Println("  down             roll back the last migration")
	fmt.Println("  goto <version>   migrate to a specific version")
	fmt.Println("  force <version>  set the version without running migrations")
	fmt.Println("  status           print the current version")
}
