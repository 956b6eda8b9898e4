package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cascade-engine/internal/database"
)

var migrateSQLFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Run gorm auto-migration for every model, or apply a raw SQL file.

Examples:
  cascade-engine migrate
  cascade-engine migrate --sql migrations/002_backfill.sql`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateSQLFile, "sql", "", "Apply this SQL file instead of auto-migrating (postgres only)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if migrateSQLFile != "" {
		if cfg.Database.Driver != "postgres" {
			return fmt.Errorf("--sql requires the postgres driver")
		}
		if err := database.ApplySQLFile(context.Background(), cfg.GetDSN(), migrateSQLFile); err != nil {
			return err
		}
		log.Info().Str("file", migrateSQLFile).Msg("migration applied")
		return nil
	}

	return connectDB(cfg)
}
