// cmd/ledgerctl/main.go
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/insulate/badminton-booking-sub002/internal/config"
	"github.com/insulate/badminton-booking-sub002/internal/db"
)

var (
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the booking ledger database",
	Long: `Administrative commands for the booking ledger: schema migrations,
one-off payment expiry sweeps and sequence inspection.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML config file")
}

// openDatabase loads the config and opens the store. Opening applies any
// pending migrations.
func openDatabase() (*config.Config, *db.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
