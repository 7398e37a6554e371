package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/chromatic/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the sqlite schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "chromatic.db", "sqlite database path")

	open := func() (*db.DB, error) { return db.OpenDB(dbPath) }

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, store)
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, store)
		},
	}
	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current and latest schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			return printVersion(cmd, store)
		},
	}
	to := &cobra.Command{
		Use:   "to VERSION",
		Short: "Migrate up or down to a specific schema version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.MigrateTo(uint(v)); err != nil {
				return err
			}
			return printVersion(cmd, store)
		},
	}
	cmd.AddCommand(up, down, to, version)
	return cmd
}

func printVersion(cmd *cobra.Command, store *db.DB) error {
	current, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (latest %d, dirty=%t)\n", current, latest, dirty)
	return err
}
