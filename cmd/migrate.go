package cmd

import (
	"github.com/portal-orchestrator/config"
	"github.com/portal-orchestrator/database"
	"github.com/portal-orchestrator/repositories"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema and seed the admin account and settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		zap.S().Info("🚀 Starting database migration...")

		if err := database.Initialize(cfg.DatabaseURL); err != nil {
			return err
		}
		if err := seed(cfg); err != nil {
			return err
		}

		zap.S().Info("✅ Database migration completed successfully")
		return nil
	},
}

// seed creates the bootstrap admin and the settings row
func seed(cfg *config.Config) error {
	if err := database.SeedAdmin(database.DB, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}
	_, err := repositories.NewStore(database.DB, cfg.BuildNamespace).Settings.Get()
	return err
}
