package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scentdesk/fragrance-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fragrance-cli",
	Short: "AI fragrance resolution pipeline",
	Long:  "Resolves free-text fragrance queries into suggestions, canonical names, scent notes, and attributes via pluggable AI providers, with cost tracking and feedback learning.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env file is optional; absence is not an error.
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
