package main

import (
	"fmt"

	"messenger/db"
	"messenger/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := bootstrap(); err != nil {
			return err
		}
		defer logger.Sync()

		// ConnectDB применяет миграции
		if err := db.ConnectDB(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer db.Close()

		logger.Log.Info("database is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
