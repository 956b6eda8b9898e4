package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cascade-engine/internal/config"
	"cascade-engine/internal/logging"
)

// rootCmd is the base command for the cascade engine
var rootCmd = &cobra.Command{
	Use:   "cascade-engine",
	Short: "Prediction-market cascade generation and resolution service",
	Long: `cascade-engine discovers related prediction-market events, assembles them
into validated causal cascades and settles user predictions once the
underlying markets resolve.`,
	SilenceUsage: true,
}

// loadConfig loads configuration and sets up logging for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
