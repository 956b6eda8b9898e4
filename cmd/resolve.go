package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"cascade-engine/internal/database"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <event> <yes|no>",
	Short: "Settle a queued event by id or slug",
	Long: `Run the settlement path synchronously for one queued event, the same way
the poller does when a market closes. Resolving an already resolved event
changes nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := connectDB(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg, database.GetDB())
	if err != nil {
		return err
	}

	report, err := a.queue.ResolveManually(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
