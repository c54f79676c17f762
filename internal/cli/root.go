// Package cli implements the veridianctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/veridian/internal/config"
	"github.com/veridian-systems/veridian/internal/repository"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "veridianctl",
	Short: "Veridian reasoning engine CLI",
	Long: `veridianctl is the command-line interface for the Veridian
neuro-symbolic reasoning engine.

Import detection rules, seed demo data, review alerts and record
analyst decisions from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(decisionsCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not load config: %v\n", err)
		os.Exit(1)
	}
}

func openRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.Database.Type == "memory" {
		return repository.NewInMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(ctx, cfg.Database.Postgres.ConnString())
}
