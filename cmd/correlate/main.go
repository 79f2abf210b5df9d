// Package main provides the correlate CLI entry point.
//
// Usage:
//
//	correlate QUERY_FILE REFERENCE_FILE OUTPUT_FILE
//
// Every query point receives the label of its nearest reference point. Options
// come from ./correlate.yaml (or ./correlate.yml) when present; see pkg/config.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orneryd/geocorrelate/pkg/config"
	"github.com/orneryd/geocorrelate/pkg/correlate"
	"github.com/orneryd/geocorrelate/pkg/gpu"
	"github.com/orneryd/geocorrelate/pkg/logging"
	"github.com/orneryd/geocorrelate/pkg/metrics"
	"github.com/orneryd/geocorrelate/pkg/pointio"
	"github.com/orneryd/geocorrelate/pkg/search"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlate QUERY_FILE REFERENCE_FILE OUTPUT_FILE",
		Short: "Transfer reference labels onto query points by nearest neighbour",
		Long: `correlate assigns every query point the label of its nearest reference point
under an anisotropic distance aligned with a geological major direction.

Input files are CSV (optionally .gz or .zst compressed) or parquet. The
output file gets a header x,y,z,w and one row per query point, in query order.

Options are read from ./correlate.yaml or ./correlate.yml when present.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Usage is for argument errors only.
			cmd.SilenceUsage = true
			return run(args[0], args[1], args[2], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

func run(queryPath, refPath, outPath string, stdout, stderr io.Writer) error {
	cfg, err := config.LoadFromFile(config.FindConfigFile())
	if err != nil {
		return err
	}

	lc := cfg.LoggingConfig()
	lc.Output = stderr
	logger, err := logging.New(lc)
	if err != nil {
		return err
	}
	log := logging.Component(logger, "cli")
	log.Debug().Str("config", cfg.String()).Msg("configuration loaded")

	m := metrics.New()
	if cfg.Metrics.Textfile != "" {
		defer writeTextfile(log, m, cfg.Metrics.Textfile)
	}

	opts, err := cfg.CorrelateOptions()
	if err != nil {
		return err
	}
	opts.Logger = logger
	opts.Metrics = m

	if opts.Search.Strategy == search.StrategyDevice {
		device, err := openDevice(cfg, log)
		if err != nil {
			return err
		}
		defer device.Release()
		opts.Search.Device = device
	}

	c, err := correlate.New(opts)
	if err != nil {
		return err
	}

	po, err := cfg.PointOptions()
	if err != nil {
		return err
	}
	queries, err := pointio.ReadQueries(queryPath, po)
	if err != nil {
		return err
	}
	refs, err := pointio.ReadReferences(refPath, po)
	if err != nil {
		return err
	}
	log.Debug().Int("queries", len(queries)).Int("references", len(refs)).Msg("point sets loaded")

	res, err := c.Run(queries, refs)
	if err != nil {
		return err
	}
	if err := pointio.WriteResults(outPath, res.Rows, po.Storage); err != nil {
		return err
	}

	fmt.Fprintln(stdout, res.Report.String())
	return nil
}

func openDevice(cfg *config.Config, log zerolog.Logger) (gpu.Device, error) {
	dc, err := cfg.GPUConfig()
	if err != nil {
		return nil, err
	}
	mgr, err := gpu.NewManager(dc)
	if err != nil {
		return nil, err
	}
	info := mgr.Device()
	log.Info().
		Str("backend", string(info.Backend)).
		Str("device", info.Name).
		Int("compute_units", info.ComputeUnits).
		Msg("device selected")
	return mgr.Open()
}

func writeTextfile(log zerolog.Logger, m *metrics.Metrics, path string) {
	if err := m.WriteTextfile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("metrics textfile not written")
	}
}
