package main

import (
	"context"
	"fmt"
	"os"

	"atlas-air/internal/config"
	"atlas-air/internal/database"
	"atlas-air/internal/database/migrations"
	"atlas-air/internal/database/seed"
	"atlas-air/internal/logger"

	"github.com/joho/godotenv"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	defer log.Close()

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	if cfg.Database.Driver == database.DriverSQLite {
		if err := database.CreateSchema(ctx, db); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to create schema: %v", err))
		}
	} else {
		runner := migrations.NewRunner(db, migrations.MigrateOptions{MigrationsDir: cfg.Migrations.Dir, AutoMigrate: true}, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Failed to run migrations: %v", err))
		}
	}

	sum, err := seed.Run(ctx, db, seed.Options{
		AdminPhone:       getEnv("SEED_ADMIN_PHONE", "900000001"),
		AdminPassword:    getEnv("SEED_ADMIN_PASSWORD", "admin123"),
		CustomerPhone:    getEnv("SEED_CUSTOMER_PHONE", "910000001"),
		CustomerPassword: getEnv("SEED_CUSTOMER_PASSWORD", "customer123"),
	}, log)
	if err != nil {
		log.Fatal("SEED", fmt.Sprintf("❌ Seeding failed: %v", err))
	}
	if sum.Skipped {
		log.Info("SEED", "Database already has airports, nothing to do")
		return
	}
	log.Info("SEED", fmt.Sprintf("✅ Seeded %d airports, %d aircraft, %d seats, %d flights, %d customers",
		sum.Airports, sum.Aircraft, sum.Seats, sum.Flights, sum.Customers))
}
