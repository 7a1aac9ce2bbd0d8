package tgem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/phil-mansfield/tgem/avalanche"
	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/gas"
	"github.com/phil-mansfield/tgem/geom"
	"github.com/phil-mansfield/tgem/io"
)

// uniformWrapper describes a 200 um gap with a field of 10 kV/cm filled with
// Ar/iC4H10 90/10.
func uniformWrapper() *io.AvalancheWrapper {
	w := io.DefaultAvalancheWrapper()
	w.Avalanche.Z, w.Avalanche.Energy = 0.01, 100
	w.Avalanche.Workers = 2
	w.Gas.Species = []string{"ar", "ic4h10"}
	w.Gas.Fraction = []float64{90, 10}
	w.Gas.MaxElectronEnergy = 120
	w.Sensor.BoxConfig = io.BoxConfig{-1, -1, 0, 1, 1, 0.02}
	w.UniformField.BoxConfig = io.BoxConfig{-1, -1, 0, 1, 1, 0.02}
	w.UniformField.EZ = -1000
	return w
}

func TestNewDetectorUniform(t *testing.T) {
	w := uniformWrapper()
	require.NoError(t, w.CheckInit())
	d, err := NewDetector(w, nil)
	require.NoError(t, err)

	assert.Nil(t, d.Map)
	require.NotNil(t, d.Uniform)
	assert.True(t, d.Gas.Initialised())
	assert.Equal(t, "ar/ic4h10", d.Gas.Name())
	assert.Equal(t, 1, d.Sensor.Components())
	assert.Equal(t, 2, d.Tracker.Config().Workers)

	start := Start(&w.Avalanche)
	assert.Equal(t, 100.0, start.Energy)
	agg, err := d.Tracker.Avalanche(context.Background(), start)
	require.NoError(t, err)
	electrons, ions := agg.AvalancheSize()
	assert.Equal(t, electrons, ions + 1)
}

func TestNewGasErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(w *io.AvalancheWrapper)
	}{
		{"fractions", func(w *io.AvalancheWrapper) {
			w.Gas.Fraction = []float64{50, 10}
		}},
		{"species", func(w *io.AvalancheWrapper) {
			w.Gas.Species = []string{"ar", "xenon-137"}
		}},
		{"penning", func(w *io.AvalancheWrapper) {
			w.Gas.PenningProbability, w.Gas.PenningSpecies = 0.5, "kr"
		}},
		{"mobility", func(w *io.AvalancheWrapper) {
			w.Gas.IonMobility = []string{"ar:does_not_exist.txt"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := uniformWrapper()
			tt.modify(w)
			_, err := NewDetector(w, nil)
			assert.ErrorIs(t, err, gas.ErrConfig)
		})
	}
}

// writeCube writes a cube of side L cm split into six tetrahedra, with a
// potential rising linearly along z at V/cm and a single body of the given
// permittivity.
func writeCube(t *testing.T, L, gradient, permittivity float64) io.MeshConfig {
	dir := t.TempDir()

	nodes, pots := &strings.Builder{}, &strings.Builder{}
	for id := 1; id <= 8; id++ {
		i, j, k := (id-1)&1, ((id-1)>>1)&1, ((id-1)>>2)&1
		fmt.Fprintf(nodes, "%d -1 %g %g %g\n",
			id, float64(i)*L, float64(j)*L, float64(k)*L)
		fmt.Fprintf(pots, "%d %g\n", id, gradient*float64(k)*L)
	}

	// Each tetrahedron follows a path from (0, 0, 0) to (1, 1, 1) along
	// the axes in one of the six possible orders.
	elems := &strings.Builder{}
	orders := [6][3]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for e, order := range orders {
		id, ids := 1, []int{1}
		for _, axis := range order {
			id += 1 << axis
			ids = append(ids, id)
		}
		fmt.Fprintf(elems, "%d 1 504 %d %d %d %d\n",
			e+1, ids[0], ids[1], ids[2], ids[3])
	}

	write := func(name, text string) string {
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, name), []byte(text), 0644,
		))
		return name
	}
	return io.MeshConfig{
		Dir:         dir,
		Nodes:       write("mesh.nodes", nodes.String()),
		Elements:    write("mesh.elements", elems.String()),
		Dielectrics: write("dielectrics.dat", fmt.Sprintf("1 %g\n", permittivity)),
		Potentials:  write("potentials.dat", pots.String()),
		Unit:        "cm",
		PeriodicX:   true,
		PeriodicY:   true,
	}
}

func TestNewDetectorMesh(t *testing.T) {
	w := uniformWrapper()
	w.Mesh = writeCube(t, 0.02, 1000, 1)
	w.UniformField = io.UniformFieldConfig{}
	w.Sensor.BoxConfig = io.BoxConfig{-1, -1, 0, 1, 1, 0.02}
	require.NoError(t, w.CheckInit())

	d, err := NewDetector(w, nil)
	require.NoError(t, err)
	require.NotNil(t, d.Map)
	assert.Nil(t, d.Uniform)
	assert.Len(t, d.Map.Media(), 1)

	E, status := d.Map.FieldAt(geom.Vec{0.013, 0.007, 0.011})
	assert.Equal(t, field.OK, status)
	assert.InDelta(t, -1000, E[2], 1e-6)

	// Periodic along x and y, so the laterally offset point sees the same
	// field.
	E2, status := d.Map.FieldAt(geom.Vec{0.513, -0.273, 0.011})
	assert.Equal(t, field.OK, status)
	assert.InDeltaSlice(t, E[:], E2[:], 1e-9)

	agg, err := d.Tracker.Avalanche(context.Background(), Start(&w.Avalanche))
	require.NoError(t, err)
	assert.Greater(t, agg.EndpointCount(), 0)
	for _, ep := range agg.Endpoints() {
		assert.True(t, ep.Status.Terminal())
	}
}

func TestNewDetectorMeshWithoutGas(t *testing.T) {
	w := uniformWrapper()
	w.Mesh = writeCube(t, 0.02, 1000, 4.3)
	_, err := NewDetector(w, nil)
	assert.ErrorIs(t, err, field.ErrMesh)
}

type recordingSink struct {
	mu    sync.Mutex
	seeds map[int]uint64
	sizes map[int]int
	fail  int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seeds: map[int]uint64{}, sizes: map[int]int{}, fail: -1}
}

var errSink = errors.New("sink failed")

func (s *recordingSink) WriteAvalanche(
	run int, seed uint64, agg *avalanche.Aggregator,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run == s.fail { return errSink }
	s.seeds[run] = seed
	s.sizes[run], _ = agg.AvalancheSize()
	return nil
}

func testCampaign(t *testing.T, parallel int, sinks ...Sink) *Campaign {
	w := uniformWrapper()
	d, err := NewDetector(w, nil)
	require.NoError(t, err)
	return &Campaign{
		Tracker: d.Tracker, Start: Start(&w.Avalanche),
		Runs: 6, Seed: 40, Parallel: parallel, Sinks: sinks,
	}
}

func TestCampaign(t *testing.T) {
	sink := newRecordingSink()
	sr := tracetest.NewSpanRecorder()
	c := testCampaign(t, 3, sink)
	c.Tracer = sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sr),
	).Tracer("test")

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Electrons, c.Runs)
	require.Len(t, sum.Ions, c.Runs)

	mean := 0.0
	for i := 0; i < c.Runs; i++ {
		agg, err := c.Tracker.AvalancheSeeded(
			context.Background(), c.Seed + uint64(i), c.Start,
		)
		require.NoError(t, err)
		electrons, ions := agg.AvalancheSize()
		assert.Equal(t, electrons, sum.Electrons[i])
		assert.Equal(t, ions, sum.Ions[i])
		assert.Equal(t, c.Seed + uint64(i), sink.seeds[i])
		assert.Equal(t, electrons, sink.sizes[i])
		mean += float64(electrons) / float64(c.Runs)
	}
	assert.InDelta(t, mean, sum.Mean, 1e-9)
	assert.GreaterOrEqual(t, sum.Variance, 0.0)
	assert.Equal(t, 0, sum.Truncated)

	spans := sr.Ended()
	require.Len(t, spans, c.Runs + 1)
	names := map[string]int{}
	for _, s := range spans { names[s.Name()]++ }
	assert.Equal(t, map[string]int{"avalanche": c.Runs, "campaign": 1}, names)

	serial, err := testCampaign(t, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sum.Electrons, serial.Electrons)
}

func TestCampaignErrors(t *testing.T) {
	sink := newRecordingSink()
	sink.fail = 2
	_, err := testCampaign(t, 2, sink).Run(context.Background())
	assert.ErrorIs(t, err, errSink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = testCampaign(t, 2).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	c := testCampaign(t, 1)
	c.Runs = 0
	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, avalanche.ErrConfig)

	_, err = (&Campaign{Runs: 1}).Run(context.Background())
	assert.ErrorIs(t, err, avalanche.ErrConfig)
}
