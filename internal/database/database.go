package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cascade-engine/internal/models"
)

var DB *gorm.DB

// Open returns a gorm handle for the driver ("postgres" or "sqlite").
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Connect establishes the shared connection
func Connect(driver, dsn string) error {
	db, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	DB = db

	log.Info().Str("driver", driver).Msg("database connection established")
	return nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate creates or updates the schema on db.
func Migrate(db *gorm.DB) error {
	groups := map[string][]interface{}{
		"cascade": {
			&models.Event{},
			&models.Cascade{},
			&models.CascadeEffect{},
			&models.CascadeRelationship{},
		},
		"resolution": {
			&models.ResolutionQueueEntry{},
		},
		"progression": {
			&models.Prediction{},
			&models.UserProgress{},
		},
	}

	for _, name := range []string{"cascade", "resolution", "progression"} {
		for _, model := range groups[name] {
			if err := db.AutoMigrate(model); err != nil {
				return fmt.Errorf("migration of %s model %T failed: %w", name, model, err)
			}
		}
	}

	log.Info().Msg("database migrations completed")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
