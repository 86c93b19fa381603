package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"park-ticketing/internal/database/migrations"
	"park-ticketing/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	direction := flag.String("direction", "up", "up, down or to")
	version := flag.Uint("version", 0, "target version when direction=to")
	flag.Parse()

	_ = godotenv.Load()
	log := logger.New(os.Stdout)

	dsn := os.Getenv("STORE_DSN")
	if dsn == "" {
		log.Fatal("CONFIG", "STORE_DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := db.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}

	// Closing the runner also closes db.
	runner := migrations.NewRunner(db, log)
	defer runner.Close()

	switch *direction {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*version)
	default:
		err = fmt.Errorf("unknown direction %q", *direction)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", "✅ Done")
}
