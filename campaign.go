package tgem

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/tgem/avalanche"
)

const tracerName = "github.com/phil-mansfield/tgem"

// Sink receives finished avalanches. store.Store and h5out.Writer are
// sinks.
type Sink interface {
	WriteAvalanche(run int, seed uint64, agg *avalanche.Aggregator) error
}

// Campaign runs a series of avalanches from the same starting state. Run i
// uses the seed Seed + i, so results do not depend on Parallel.
type Campaign struct {
	Tracker *avalanche.Tracker
	Start   avalanche.State
	Runs    int
	Seed    uint64
	// Parallel is the number of avalanches run at once. Each avalanche also
	// uses the tracker's workers.
	Parallel int
	Sinks    []Sink

	// Optional
	Log    *slog.Logger
	Tracer trace.Tracer
}

// Summary describes the avalanches of a campaign, ordered by run.
type Summary struct {
	Electrons, Ions []int
	// Mean and Variance are those of the electron counts.
	Mean, Variance float64
	Truncated      int
}

// Run runs every avalanche of the campaign. If ctx is cancelled or a sink
// fails, the remaining runs are abandoned and the error is returned.
func (c *Campaign) Run(ctx context.Context) (*Summary, error) {
	if c.Tracker == nil {
		return nil, fmt.Errorf("%w: campaign has no tracker", avalanche.ErrConfig)
	} else if c.Runs < 1 {
		return nil, fmt.Errorf("%w: campaign has %d runs",
			avalanche.ErrConfig, c.Runs)
	}
	log, tracer, parallel := c.Log, c.Tracer, c.Parallel
	if log == nil { log = slog.Default() }
	if tracer == nil { tracer = otel.Tracer(tracerName) }
	if parallel < 1 { parallel = 1 }
	log = log.With("module", "campaign")

	ctx, span := tracer.Start(ctx, "campaign", trace.WithAttributes(
		attribute.Int("runs", c.Runs), attribute.Int64("seed", int64(c.Seed)),
	))
	defer span.End()

	sum := &Summary{
		Electrons: make([]int, c.Runs), Ions: make([]int, c.Runs),
	}
	truncated := make([]bool, c.Runs)
	sinkMu := sync.Mutex{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := 0; i < c.Runs; i++ {
		g.Go(func() error {
			agg, err := c.runOne(ctx, tracer, i)
			if err != nil { return err }

			sum.Electrons[i], sum.Ions[i] = agg.AvalancheSize()
			truncated[i] = agg.Truncated()

			sinkMu.Lock()
			defer sinkMu.Unlock()
			for _, s := range c.Sinks {
				if err := s.WriteAvalanche(i, c.Seed + uint64(i), agg); err != nil {
					return fmt.Errorf("writing run %d: %w", i, err)
				}
			}

			log.Info("finished avalanche", "run", i,
				"electrons", sum.Electrons[i], "ions", sum.Ions[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	xs := make([]float64, c.Runs)
	for i := range xs {
		xs[i] = float64(sum.Electrons[i])
		if truncated[i] { sum.Truncated++ }
	}
	sum.Mean, sum.Variance = stat.MeanVariance(xs, nil)
	if c.Runs == 1 { sum.Variance = 0 }

	span.SetAttributes(
		attribute.Float64("mean_electrons", sum.Mean),
		attribute.Int("truncated", sum.Truncated),
	)

	ms := runtime.MemStats{}
	runtime.ReadMemStats(&ms)
	log.Info("campaign finished", "runs", c.Runs, "mean", sum.Mean,
		"variance", sum.Variance, "truncated", sum.Truncated,
		"alloc_mb", ms.Alloc >> 20, "sys_mb", ms.Sys >> 20)

	return sum, nil
}

func (c *Campaign) runOne(
	ctx context.Context, tracer trace.Tracer, run int,
) (*avalanche.Aggregator, error) {
	seed := c.Seed + uint64(run)
	ctx, span := tracer.Start(ctx, "avalanche", trace.WithAttributes(
		attribute.Int("run", run), attribute.Int64("seed", int64(seed)),
	))
	defer span.End()

	agg, err := c.Tracker.AvalancheSeeded(ctx, seed, c.Start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	electrons, ions := agg.AvalancheSize()
	span.SetAttributes(
		attribute.Int("electrons", electrons), attribute.Int("ions", ions),
		attribute.Bool("truncated", agg.Truncated()),
	)
	return agg, nil
}
