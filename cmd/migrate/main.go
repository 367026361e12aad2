package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dmehra2102/vinyl-storefront/internal/config"
	"github.com/dmehra2102/vinyl-storefront/pkg/logging"
	"github.com/dmehra2102/vinyl-storefront/pkg/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dbURL string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or revert the storefront database schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "database-url", "", "postgres URL (defaults to PG_URL)")

	open := func() (*migrations.Migrator, error) {
		if dbURL == "" {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			if err := cfg.Validate(config.MigrateTool); err != nil {
				return nil, err
			}
			dbURL = cfg.PGURL
		}
		return migrations.New(dbURL)
	}
	log := logging.New()

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Up(); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Revert the last n migrations, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Down(steps); err != nil {
				return err
			}
			log.Info("migrations reverted", "steps", steps)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	})

	return root
}
