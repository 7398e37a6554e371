package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/chromatic/internal/api"
	"github.com/banshee-data/chromatic/internal/export"
	"github.com/banshee-data/chromatic/internal/security"
)

func newFetchCmd() *cobra.Command {
	var (
		server     string
		id         string
		timeFormat string
		out        string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a rainbow table from a running server (lists rainbows without --id)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api.NewClient(server)
			if id == "" {
				list, err := c.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%dw x %dt\n", s.ID, s.Name, s.NWave, s.NTime)
				}
				return nil
			}

			data, err := c.TableCSV(cmd.Context(), id, timeFormat)
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if out == "" {
				out = security.SanitizeFilename(id) + "-" + export.TableFile
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the chromatic server")
	cmd.Flags().StringVar(&id, "id", "", "Rainbow id to download")
	cmd.Flags().StringVar(&timeFormat, "timeformat", "", "Time unit of the table (default day)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, or - for stdout (default <id>-table.csv)")
	return cmd
}
