// Package search finds, for every query point, the nearest reference point under
// a metric.
//
// The search is brute force: every query is compared against every reference.
// Three interchangeable strategies produce the same winners:
//
//   - parallel: contiguous query ranges spread over a worker pool, scalar metric.
//   - vectorized: references transposed once into columns; each worker scans them
//     tile by tile through the pkg/simd kernels.
//   - device: one work item per query on a gpu.Device.
//
// In every strategy the first reference reaching the minimum distance wins.
//
// Example:
//
//	engine, err := search.NewEngine(m, search.Config{Strategy: search.StrategyVectorized})
//	if err != nil {
//		return err
//	}
//	winners, err := engine.Nearest(queries, geometry.Positions(refs))
package search

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/gpu"
	"github.com/orneryd/geocorrelate/pkg/metric"
	"github.com/orneryd/geocorrelate/pkg/metrics"
	"github.com/orneryd/geocorrelate/pkg/simd"
)

// Errors
var (
	ErrNoReferencePoints = errors.New("search: reference set is empty")
	ErrNoDevice          = errors.New("search: device strategy requires a device")
)

// Strategy selects how the search is executed.
type Strategy string

const (
	StrategyParallel   Strategy = "parallel"
	StrategyVectorized Strategy = "vectorized"
	StrategyDevice     Strategy = "device"
)

// ParseStrategy validates a strategy name. Empty means parallel.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyParallel:
		return StrategyParallel, nil
	case StrategyVectorized, StrategyDevice:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("search: unknown strategy %q (want parallel, vectorized or device)", s)
}

// DefaultTileSize is the reference tile length of the vectorized strategy.
const DefaultTileSize = 1024

// Config controls engine construction.
type Config struct {
	// Strategy selects the execution strategy (default parallel)
	Strategy Strategy

	// Workers bounds the worker pool (0 = GOMAXPROCS)
	Workers int

	// TileSize is the vectorized reference tile length (0 = DefaultTileSize)
	TileSize int

	// Device runs the device strategy; the caller owns it
	Device gpu.Device

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Engine runs nearest-neighbour searches with one metric and strategy.
// An Engine holds no per-search state and may be used concurrently.
type Engine struct {
	metric   metric.Metric
	params   metric.Params
	strategy Strategy
	workers  int
	tileSize int
	device   gpu.Device
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// NewEngine validates cfg and returns an engine for m.
func NewEngine(m metric.Metric, cfg Config) (*Engine, error) {
	if m == nil {
		return nil, errors.New("search: nil metric")
	}
	strategy, err := ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("search: workers must be >= 0, got %d", cfg.Workers)
	}
	if cfg.TileSize < 0 {
		return nil, fmt.Errorf("search: tile size must be >= 0, got %d", cfg.TileSize)
	}
	if strategy == StrategyDevice && cfg.Device == nil {
		return nil, ErrNoDevice
	}

	e := &Engine{
		metric:   m,
		params:   m.Params(),
		strategy: strategy,
		workers:  cfg.Workers,
		tileSize: cfg.TileSize,
		device:   cfg.Device,
		log:      cfg.Logger.With().Str("component", "search").Str("strategy", string(strategy)).Logger(),
		metrics:  cfg.Metrics,
	}
	if e.workers == 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	if e.tileSize == 0 {
		e.tileSize = DefaultTileSize
	}
	return e, nil
}

// Strategy returns the engine's execution strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Nearest returns, for each query, the index of its nearest reference.
//
// An empty reference set fails with ErrNoReferencePoints before any work is done.
// An empty query set returns an empty result.
func (e *Engine) Nearest(queries, refs []geometry.Point3) ([]int, error) {
	if len(refs) == 0 {
		return nil, ErrNoReferencePoints
	}
	out := make([]int, len(queries))
	if len(queries) == 0 {
		return out, nil
	}

	start := time.Now()
	var err error
	switch e.strategy {
	case StrategyVectorized:
		err = e.nearestVectorized(queries, refs, out)
	case StrategyDevice:
		err = e.nearestDevice(queries, refs, out)
	default:
		err = e.nearestParallel(queries, refs, out)
	}
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	e.metrics.ObserveSearch(string(e.strategy), len(queries), len(refs), elapsed)
	e.log.Debug().
		Int("queries", len(queries)).
		Int("references", len(refs)).
		Dur("elapsed", elapsed).
		Msg("search complete")
	return out, nil
}

// forRanges splits [0, n) into contiguous ranges, one per worker.
func (e *Engine) forRanges(n int, fn func(lo, hi int)) error {
	workers := min(e.workers, n)
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) nearestParallel(queries, refs []geometry.Point3, out []int) error {
	distance := e.metric.Distance
	if e.params.Kind == metric.KindAnisotropic {
		params := e.params
		distance = func(q, r geometry.Point3) float64 { return metric.AnisotropicDistance(&params, q, r) }
	} else if e.params.Kind == metric.KindEuclidean {
		distance = metric.EuclideanDistance
	}

	return e.forRanges(len(queries), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			q := queries[i]
			best := 0
			bestD := distance(q, refs[0])
			for j := 1; j < len(refs); j++ {
				if d := distance(q, refs[j]); d < bestD {
					best, bestD = j, d
				}
			}
			out[i] = best
		}
	})
}

func (e *Engine) nearestVectorized(queries, refs []geometry.Point3, out []int) error {
	cols := simd.Transpose(refs)
	tile := min(e.tileSize, len(refs))
	params := e.params

	return e.forRanges(len(queries), func(lo, hi int) {
		scratch := simd.NewScratch(tile)
		for i := lo; i < hi; i++ {
			q := queries[i]
			best := -1
			var bestD float64
			for t0 := 0; t0 < cols.Len(); t0 += tile {
				t1 := min(t0+tile, cols.Len())
				d := simd.BatchDistance(scratch.Distances(t1-t0), cols.Slice(t0, t1), q, &params, scratch)
				j, v := simd.ArgMin(d)
				if best < 0 || v < bestD {
					best, bestD = t0+j, v
				}
			}
			out[i] = best
		}
	})
}

func (e *Engine) nearestDevice(queries, refs []geometry.Point3, out []int) error {
	hits, err := e.device.Correlate(gpu.Job{Queries: queries, References: refs, Params: e.params})
	if err != nil {
		return fmt.Errorf("search: device: %w", err)
	}
	if len(hits) != len(queries) {
		return fmt.Errorf("search: device returned %d hits for %d queries", len(hits), len(queries))
	}
	for i, h := range hits {
		if h.Index < 0 || h.Index >= len(refs) {
			return fmt.Errorf("search: device returned reference %d of %d for query %d", h.Index, len(refs), i)
		}
		out[i] = h.Index
	}
	return nil
}
