package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/banshee-data/chromatic/internal/api"
	"github.com/banshee-data/chromatic/internal/db"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen     string
		dbPath     string
		assetsHost string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rainbow HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			var store *db.DB
			var admin func(*http.ServeMux) error
			if dbPath != "" {
				if store, err = db.NewDB(dbPath); err != nil {
					return err
				}
				defer store.Close()
				admin = store.AttachAdminRoutes
			}

			srv := api.NewServer(cfg, store, nil)
			srv.AssetsHost = assetsHost
			return srv.Start(cmd.Context(), listen, admin)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "Listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database for stored rainbows (and /debug/ admin routes)")
	cmd.Flags().StringVar(&assetsHost, "assets-host", "", "Where chart pages load echarts from (default: the go-echarts CDN)")
	return cmd
}
