package main

import (
	"fmt"
	"os"

	"messenger/config"
	"messenger/logger"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "messenger",
	Short: "Direct messaging service",
	Long: `Direct messaging between pairs of users: message store, conversation
index, read tracking, reactions and a polling sync API.`,
	SilenceUsage: true,
}

// Execute запускает корневую команду
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
}

// bootstrap читает конфиг и поднимает логгер
func bootstrap() (*config.ConfigSchema, error) {
	if err := config.LoadConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Init(config.AppConfig.Logs.Level); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return config.AppConfig, nil
}
