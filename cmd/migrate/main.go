package main

import (
	"log"
	"os"

	"github.com/docvault/backend/internal/config"
	"github.com/docvault/backend/internal/database"
)

// Runs schema migrations and seeds the bootstrap administrator. The
// server binary never touches the schema; run this before first start
// and after every upgrade.
func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	bootstrapPassword := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")

	if err := database.Migrate(db, bootstrapPassword); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Print("migrations applied")
}
