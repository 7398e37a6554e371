package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/chromatic/internal/config"
	"github.com/banshee-data/chromatic/internal/db"
	"github.com/banshee-data/chromatic/internal/export"
	"github.com/banshee-data/chromatic/internal/fsutil"
	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/plotting"
	"github.com/banshee-data/chromatic/internal/rainbow"
	"github.com/banshee-data/chromatic/internal/simulate"
)

type simulateFlags struct {
	snr        float64
	dt         float64
	dtUnit     string
	resolution float64
	seed       int64
	timeFormat string
	outDir     string
	dbPath     string
	plot       bool
	channels   int
	transit    float64
	normalize  bool
}

// applyFlags copies every flag the user set onto cfg, so flags win over
// the config file and the file wins over built-in defaults.
func (f *simulateFlags) applyFlags(cmd *cobra.Command, cfg *config.SimulationConfig) {
	changed := cmd.Flags().Changed
	if changed("snr") {
		cfg.SignalToNoise = &f.snr
	}
	if changed("dt") {
		cfg.Dt = &f.dt
	}
	if changed("dt-unit") {
		cfg.DtUnit = &f.dtUnit
	}
	if changed("R") {
		cfg.Resolution = &f.resolution
	}
	if changed("seed") {
		cfg.Seed = &f.seed
	}
	if changed("timeformat") {
		cfg.TimeFormat = &f.timeFormat
	}
}

func newSimulateCmd(a *app) *cobra.Command {
	f := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a noisy rainbow and write its table and arrays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			f.applyFlags(cmd, cfg)
			return runSimulate(cmd, cfg, f, fsutil.OSFileSystem{})
		},
	}
	fl := cmd.Flags()
	fl.Float64Var(&f.snr, "snr", 100, "Signal-to-noise ratio per cell")
	fl.Float64Var(&f.dt, "dt", 1, "Time step, in --dt-unit")
	fl.StringVar(&f.dtUnit, "dt-unit", "minute", "Unit of --dt (s, minute, hour, day, ...)")
	fl.Float64Var(&f.resolution, "R", 50, "Spectral resolution (channels per unit ln wavelength)")
	fl.Int64Var(&f.seed, "seed", 0, "Random seed (default: seeded from the clock)")
	fl.StringVar(&f.timeFormat, "timeformat", "day", "Time unit of the exports: s, second, m, minute, h, hour, day")
	fl.StringVar(&f.outDir, "out-dir", "out", "Directory for table.csv, arrays.json and rainbow.json")
	fl.StringVar(&f.dbPath, "db", "", "Also store the rainbow in this sqlite database")
	fl.BoolVar(&f.plot, "plot", false, "Write heatmap.png and lightcurves.png")
	fl.IntVar(&f.channels, "channels", plotting.DefaultLightCurves, "Number of light curves to plot")
	fl.Float64Var(&f.transit, "transit", 0, "Inject a transit with this Rp/Rstar (0 disables)")
	fl.BoolVar(&f.normalize, "normalize", false, "Normalize each wavelength by its median before export")
	return cmd
}

func runSimulate(cmd *cobra.Command, cfg *config.SimulationConfig, f *simulateFlags, fs fsutil.FileSystem) error {
	factory := simulate.NewFactory(simulate.FromConfig(cfg))
	g, err := factory.BuildFromConfig(cfg)
	if err != nil {
		return err
	}
	if f.transit > 0 {
		if g, err = g.InjectTransit(rainbow.DefaultTransitParams(), []float64{f.transit}); err != nil {
			return err
		}
	}
	if f.normalize {
		if g, err = g.Normalize(rainbow.AxisWavelength, 50); err != nil {
			return err
		}
	}

	format := cfg.GetTimeFormat()
	w := &export.Writer{FS: fs, Dir: f.outDir}
	written, err := w.WriteAll(g, format)
	if err != nil {
		return err
	}

	if f.plot {
		pl := plotting.NewPlotter(f.outDir)
		pl.FS = fs
		pl.Channels = f.channels
		figs, err := pl.WriteAll(g, format)
		if err != nil {
			return err
		}
		written = append(written, figs...)
	}

	if f.dbPath != "" {
		store, err := db.NewDB(f.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveGrid(cmd.Context(), g); err != nil {
			return err
		}
		monitoring.Logf("simulate: stored %s in %s", g.ID(), f.dbPath)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s id=%s seed=%d\n", g, g.ID(), factory.Seed())
	for _, path := range written {
		fmt.Fprintln(out, path)
	}
	return nil
}
