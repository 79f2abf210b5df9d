// Package correlate transfers reference labels onto query points.
//
// A Correlator wires the pieces of one run together: the directional basis and
// metric, the search engine, and the label join. Run times only the search and
// the join, and reports the elapsed wall-clock seconds with the point counts.
package correlate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/logging"
	"github.com/orneryd/geocorrelate/pkg/metric"
	"github.com/orneryd/geocorrelate/pkg/metrics"
	"github.com/orneryd/geocorrelate/pkg/search"
)

// Row is one output record: the query coordinates and the transferred label.
type Row = geometry.LabeledPoint

// Join builds the result set: row i is query i with the label of refs[winners[i]].
func Join(queries []geometry.Point3, refs []geometry.LabeledPoint, winners []int) ([]Row, error) {
	if len(winners) != len(queries) {
		return nil, fmt.Errorf("correlate: %d winners for %d queries", len(winners), len(queries))
	}
	rows := make([]Row, len(queries))
	for i, j := range winners {
		if j < 0 || j >= len(refs) {
			return nil, fmt.Errorf("correlate: query %d: reference index %d out of range [0, %d)", i, j, len(refs))
		}
		rows[i] = Row{Point3: queries[i], Label: refs[j].Label}
	}
	return rows, nil
}

// Options configures a Correlator.
type Options struct {
	// Metric selects anisotropic (default) or euclidean distance
	Metric metric.Kind

	// Dip and DipDirection give the major direction in degrees
	Dip          float64
	DipDirection float64

	// Weights are the anisotropy divisors
	Weights metric.Weights

	// Search configures the engine; Logger and Metrics are filled in by New
	Search search.Config

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions returns the anisotropic setup with major direction (40, 90)
// and weights 5/5/1.
func DefaultOptions() Options {
	return Options{
		Metric:       metric.KindAnisotropic,
		Dip:          40,
		DipDirection: 90,
		Weights:      metric.DefaultWeights(),
		Search:       search.Config{Strategy: search.StrategyParallel},
		Logger:       logging.Discard(),
	}
}

// Correlator runs label transfer with a fixed metric and engine.
type Correlator struct {
	metric  metric.Metric
	engine  *search.Engine
	runID   string
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New builds the basis (for the anisotropic metric), the metric and the engine.
// A degenerate major direction fails with *geometry.SingularBasisError.
func New(opts Options) (*Correlator, error) {
	m, err := buildMetric(opts)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := logging.WithRun(logging.Component(opts.Logger, "correlate"), runID)

	cfg := opts.Search
	cfg.Logger = logging.WithRun(opts.Logger, runID)
	cfg.Metrics = opts.Metrics
	engine, err := search.NewEngine(m, cfg)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("metric", m.Name()).
		Str("strategy", string(engine.Strategy())).
		Msg("correlator ready")

	return &Correlator{metric: m, engine: engine, runID: runID, log: log, metrics: opts.Metrics}, nil
}

func buildMetric(opts Options) (metric.Metric, error) {
	switch opts.Metric {
	case metric.KindEuclidean:
		return metric.NewEuclidean(), nil
	case "", metric.KindAnisotropic:
		basis, err := geometry.BuildBasis(opts.Dip, opts.DipDirection)
		if err != nil {
			return nil, err
		}
		return metric.NewAnisotropic(basis, opts.Weights)
	}
	return nil, fmt.Errorf("correlate: unknown metric %q", opts.Metric)
}

// RunID identifies this correlator in logs.
func (c *Correlator) RunID() string { return c.runID }

// Metric returns the distance metric in use.
func (c *Correlator) Metric() metric.Metric { return c.metric }

// Report summarises a run.
type Report struct {
	Queries    int
	References int
	Elapsed    time.Duration
	Strategy   search.Strategy
	RunID      string
}

// String renders the report line printed after a successful run.
func (r Report) String() string {
	return fmt.Sprintf("--- Correlated %d x %d points in %.4f seconds ---", r.Queries, r.References, r.Elapsed.Seconds())
}

// Result is a complete result set with its report.
type Result struct {
	Rows   []Row
	Report Report
}

// Run finds each query's nearest reference and joins its label.
//
// An empty reference set fails with search.ErrNoReferencePoints before any work.
// No partial result is ever returned.
func (c *Correlator) Run(queries []geometry.Point3, refs []geometry.LabeledPoint) (*Result, error) {
	strategy := string(c.engine.Strategy())
	if len(refs) == 0 {
		c.metrics.ObserveRun(strategy, len(queries), 0, 0, search.ErrNoReferencePoints)
		return nil, search.ErrNoReferencePoints
	}
	positions := geometry.Positions(refs)

	start := time.Now()
	winners, err := c.engine.Nearest(queries, positions)
	var rows []Row
	if err == nil {
		rows, err = Join(queries, refs, winners)
	}
	elapsed := time.Since(start)

	c.metrics.ObserveRun(strategy, len(queries), len(refs), elapsed, err)
	if err != nil {
		c.log.Error().Err(err).Msg("correlation failed")
		return nil, err
	}

	report := Report{
		Queries:    len(queries),
		References: len(refs),
		Elapsed:    elapsed,
		Strategy:   c.engine.Strategy(),
		RunID:      c.runID,
	}
	c.log.Info().
		Int("queries", report.Queries).
		Int("references", report.References).
		Dur("elapsed", elapsed).
		Msg("correlation complete")
	return &Result{Rows: rows, Report: report}, nil
}
