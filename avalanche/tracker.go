package avalanche

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/geom"
	"github.com/phil-mansfield/tgem/sensor"
)

// Tracker runs avalanches in a sensor. A Tracker may run several avalanches
// concurrently.
type Tracker struct {
	sensor *sensor.Sensor
	cfg    Config
	// seed overrides cfg.Seed so that SetSeed is safe to call at any time.
	seed atomic.Uint64
	log  *slog.Logger

	obs   Observer
	obsMu sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithObserver registers an observer of every track.
func WithObserver(o Observer) Option { return func(t *Tracker) { t.obs = o } }

// WithLogger sets the tracker's logger.
func WithLogger(log *slog.Logger) Option { return func(t *Tracker) { t.log = log } }

type mediaLister interface {
	Media() []field.Medium
}

// New creates a tracker. Zero values in cfg are replaced by defaults. Every
// medium the sensor's sources list must be an initialised Medium.
func New(s *sensor.Sensor, cfg Config, opts ...Option) (*Tracker, error) {
	def := DefaultConfig()
	if cfg.MaxElectrons == 0 { cfg.MaxElectrons = def.MaxElectrons }
	if cfg.CollisionSteps == 0 { cfg.CollisionSteps = def.CollisionSteps }
	if cfg.Workers == 0 { cfg.Workers = def.Workers }

	switch {
	case s == nil:
		return nil, fmt.Errorf("%w: nil sensor", ErrConfig)
	case s.Components() == 0:
		return nil, fmt.Errorf("%w: sensor has no field sources", ErrConfig)
	case cfg.MaxElectrons < 1:
		return nil, fmt.Errorf("%w: MaxElectrons = %d", ErrConfig, cfg.MaxElectrons)
	case cfg.CollisionSteps < 1:
		return nil, fmt.Errorf("%w: CollisionSteps = %d",
			ErrConfig, cfg.CollisionSteps)
	case cfg.Workers < 1:
		return nil, fmt.Errorf("%w: Workers = %d", ErrConfig, cfg.Workers)
	}

	for i, src := range s.Sources() {
		ml, ok := src.(mediaLister)
		if !ok { continue }
		for _, med := range ml.Media() {
			m, ok := med.(Medium)
			if !ok {
				return nil, fmt.Errorf("%w: medium '%s' of source %d cannot "+
					"transport electrons", ErrConfig, med.Name(), i)
			} else if !m.Initialised() {
				return nil, fmt.Errorf("%w: medium '%s' of source %d is not "+
					"initialised", ErrConfig, med.Name(), i)
			}
		}
	}

	t := &Tracker{sensor: s, cfg: cfg, log: slog.Default()}
	t.seed.Store(cfg.Seed)
	for _, opt := range opts { opt(t) }
	t.log = t.log.With("module", "avalanche")
	return t, nil
}

// Config returns the tracker's configuration after defaults are applied.
func (t *Tracker) Config() Config {
	cfg := t.cfg
	cfg.Seed = t.seed.Load()
	return cfg
}

// SetSeed changes the master seed of avalanches started after it returns.
// Avalanches which are already running keep their seed.
func (t *Tracker) SetSeed(seed uint64) { t.seed.Store(seed) }

// AvalancheElectron runs an avalanche started by an electron at (x, y, z)
// at time t0 with energy e0, moving along (dx, dy, dz). A zero direction is
// replaced by an isotropic one.
//
// If ctx is cancelled, the avalanche stops, is marked truncated and is
// returned along with ctx.Err().
func (t *Tracker) AvalancheElectron(
	ctx context.Context, x, y, z, t0, e0, dx, dy, dz float64,
) (*Aggregator, error) {
	return t.Avalanche(ctx, State{
		Pos: geom.Vec{x, y, z}, Dir: geom.Vec{dx, dy, dz},
		Time: t0, Energy: e0,
	})
}

// Avalanche runs an avalanche started by an electron in the given state.
func (t *Tracker) Avalanche(ctx context.Context, start State) (*Aggregator, error) {
	return t.AvalancheSeeded(ctx, t.seed.Load(), start)
}

// AvalancheSeeded is Avalanche with an explicit master seed. It is the way to
// run avalanches with different seeds from several goroutines.
func (t *Tracker) AvalancheSeeded(
	ctx context.Context, seed uint64, start State,
) (*Aggregator, error) {
	if !start.Pos.IsFinite() || !start.Dir.IsFinite() ||
		math.IsNaN(start.Time) || math.IsInf(start.Time, 0) ||
		!(start.Energy >= 0) || math.IsInf(start.Energy, 0) {
		return nil, fmt.Errorf("%w: invalid start state %+v", ErrConfig, start)
	}

	agg := &Aggregator{}
	gen := []*track{newTrack(seed, 0, -1, start)}
	spawned := 1

	for len(gen) > 0 {
		if ctx.Err() != nil {
			for _, tr := range gen { agg.add(tr.endpoint()) }
			agg.truncated = true
			break
		}

		if err := t.transportGeneration(ctx, gen); err != nil { return nil, err }
		if ctx.Err() != nil { agg.truncated = true }

		var next []*track
		for _, tr := range gen {
			agg.add(tr.endpoint())
			agg.ions += tr.ions

			for _, child := range tr.children {
				if spawned >= t.cfg.MaxElectrons || ctx.Err() != nil {
					agg.truncated = true
					continue
				}
				next = append(next, newTrack(seed, spawned, tr.index, child))
				spawned++
			}
		}
		gen = next
	}

	electrons, ions := agg.AvalancheSize()
	t.log.Debug("avalanche finished", "seed", seed,
		"electrons", electrons, "ions", ions, "truncated", agg.truncated)

	return agg, ctx.Err()
}

func newTrack(seed uint64, index, parent int, start State) *track {
	rng := rand.New(rand.NewPCG(seed, uint64(index)))
	if start.Dir == (geom.Vec{}) {
		start.Dir = isotropic(rng)
	} else {
		start.Dir = start.Dir.Unit()
	}
	return &track{
		seed: seed, index: index, parent: parent, start: start, state: start,
		status: Alive, rng: rng,
	}
}

// transportGeneration transports every track of a generation. Tracks are
// independent, so they are handed out to the worker pool in any order.
func (t *Tracker) transportGeneration(ctx context.Context, gen []*track) error {
	if t.cfg.Workers == 1 || len(gen) == 1 {
		for _, tr := range gen { t.transport(ctx, tr) }
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(t.cfg.Workers)
	for _, tr := range gen {
		g.Go(func() error {
			t.transport(ctx, tr)
			return nil
		})
	}
	return g.Wait()
}

func (t *Tracker) observe(tr *track) {
	if t.obs == nil { return }
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.obs.Observe(Sample{
		Seed: tr.seed, Track: tr.index, Collisions: tr.collisions,
		State: tr.state, Status: tr.status,
	})
}
