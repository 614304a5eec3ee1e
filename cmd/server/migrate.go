package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/TheGojiOG/mc-server-wrapper/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}

			db, err := database.Open(cfg.Database.Path, cfg.Database.MaxConnections)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			if down {
				version, err := db.Rollback()
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				log.Printf("Rolled back migration %s", version)
				return nil
			}

			log.Println("Running database migrations...")
			if err := db.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Println("Migrations completed successfully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the latest migration")
	return cmd
}
