package main

import (
	"errors"
	"flag"
	"log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/sakashimaa/groupbuy/pkg/config"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("path", "./migrations", "directory with migration files")
	down := flag.Bool("down", false, "roll back one migration instead of applying all")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	logger, err := config.NewLogger(config.LoggerConfig{Level: cfg.Logger.Level, Env: cfg.Env, Service: "migrate"})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	absPath, err := filepath.Abs(*dir)
	if err != nil {
		logger.Fatal("Invalid migrations path", zap.String("path", *dir), zap.Error(err))
	}

	m, err := migrate.New("file://"+absPath, cfg.Postgres.URL)
	if err != nil {
		logger.Fatal("Error creating migrator", zap.Error(err))
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("Error closing migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Migration failed", zap.Error(err))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal("Error reading schema version", zap.Error(err))
	}

	logger.Info("Migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
