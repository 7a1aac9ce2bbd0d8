package avalanche

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/gas"
	"github.com/phil-mansfield/tgem/geom"
	"github.com/phil-mansfield/tgem/sensor"
)

func arIsobutane(t testing.TB, ionScale, maxEnergy float64) *gas.Model {
	m := gas.New()
	require.NoError(t, m.SetComposition(
		gas.Component{Species: "ar", Fraction: 90},
		gas.Component{Species: "ic4h10", Fraction: 10},
	))
	require.NoError(t, m.SetPressure(760))
	require.NoError(t, m.SetTemperature(293.15))
	require.NoError(t, m.ScaleIonisation(ionScale))
	require.NoError(t, m.SetMaxElectronEnergy(maxEnergy))
	require.NoError(t, m.Initialise(true))
	return m
}

// gap is a uniform field along z between z = 0 and z = depth, with a
// sensor of the same size.
func gap(t testing.TB, Ez, depth float64, med field.Medium) *sensor.Sensor {
	box := geom.NewBox(geom.Vec{-1, -1, 0}, geom.Vec{1, 1, depth})
	u, err := field.NewUniform(geom.Vec{0, 0, Ez}, box, 0, med)
	require.NoError(t, err)
	s, err := sensor.New(box)
	require.NoError(t, err)
	require.NoError(t, s.AddComponent(u))
	return s
}

func tracker(t testing.TB, s *sensor.Sensor, cfg Config, opts ...Option) *Tracker {
	tr, err := New(s, cfg, opts...)
	require.NoError(t, err)
	return tr
}

func checkConsistent(t *testing.T, agg *Aggregator) {
	electrons, ions := agg.AvalancheSize()
	require.Equal(t, electrons, agg.EndpointCount())
	if agg.Truncated() {
		assert.LessOrEqual(t, electrons, 1 + ions)
	} else {
		assert.Equal(t, electrons, 1 + ions)
	}

	for i := 0; i < agg.EndpointCount(); i++ {
		ep := agg.EndpointAt(i)
		assert.Equal(t, i, ep.SpawnIndex)
		assert.Less(t, ep.ParentIndex, i)
		if i == 0 {
			assert.Equal(t, -1, ep.ParentIndex)
		} else {
			assert.GreaterOrEqual(t, ep.ParentIndex, 0)
		}
		if !agg.Truncated() { assert.True(t, ep.Status.Terminal()) }
		assert.GreaterOrEqual(t, ep.End.Time, ep.Start.Time)
	}
}

func TestNoIonisation(t *testing.T) {
	// Ar/iC4H10 90/10 with ionisation switched off drifting in 1 kV/cm.
	s := gap(t, -1000, 0.02, arIsobutane(t, 0, 40))

	for seed := uint64(0); seed < 3; seed++ {
		tr := tracker(t, s, Config{Seed: seed, Workers: 1})
		agg, err := tr.AvalancheElectron(
			context.Background(), 0, 0, 0.005, 0, 1, 0, 0, 0,
		)
		require.NoError(t, err)

		electrons, ions := agg.AvalancheSize()
		assert.Equal(t, 1, electrons)
		assert.Equal(t, 0, ions)
		assert.False(t, agg.Truncated())

		ep := agg.EndpointAt(0)
		assert.Equal(t, LeftVolume, ep.Status)
		assert.Greater(t, ep.End.Time, 0.0)
		checkConsistent(t, agg)
	}
}

func TestLeftVolumeAtFirstOutsidePoint(t *testing.T) {
	s := gap(t, -1000, 0.01, arIsobutane(t, 0, 40))

	var samples []Sample
	obs := ObserverFunc(func(smp Sample) { samples = append(samples, smp) })
	tr := tracker(t, s, Config{Seed: 11, Workers: 1, CollisionSteps: 1},
		WithObserver(obs))

	agg, err := tr.AvalancheElectron(
		context.Background(), 0, 0, 0.002, 0, 0.5, 0, 0, 1,
	)
	require.NoError(t, err)
	require.Equal(t, LeftVolume, agg.EndpointAt(0).Status)

	require.Greater(t, len(samples), 2)
	assert.Equal(t, Alive, samples[0].Status)
	last := samples[len(samples)-1]
	assert.Equal(t, LeftVolume, last.Status)
	assert.False(t, s.Contains(last.State.Pos))
	assert.Equal(t, agg.EndpointAt(0).End, last.State)

	for _, smp := range samples[:len(samples)-1] {
		assert.True(t, s.Contains(smp.State.Pos), "%+v", smp)
	}
	for _, smp := range samples {
		assert.Equal(t, uint64(11), smp.Seed)
	}
}

func TestSplitIonisation(t *testing.T) {
	for _, e := range []float64{10, 15.76, 15.8, 20, 40, 100, 1000} {
		for _, w := range []float64{0, 7, 10} {
			for i := 0; i < 100; i++ {
				u := float64(i) / 100
				primary, secondary := SplitIonisation(e, 15.76, w, u)
				assert.GreaterOrEqual(t, primary, 0.0)
				assert.GreaterOrEqual(t, secondary, 0.0)
				assert.LessOrEqual(t, primary + secondary, e)
				assert.LessOrEqual(t, secondary, primary + 1e-12)
				if e > 15.76 {
					assert.InDelta(t, e - 15.76, primary + secondary, 1e-9)
				}
			}
		}
	}
}

func TestIonisationCollision(t *testing.T) {
	m := arIsobutane(t, 1, 40)
	var ion *gas.Process
	for i, p := range m.Processes() {
		if p.Type == gas.Ionisation && p.Species == "ar" { ion = &m.Processes()[i] }
	}
	require.NotNil(t, ion)

	tr := tracker(t, gap(t, -1000, 1, m), Config{Workers: 1})
	for i := 0; i < 200; i++ {
		e0 := 16 + float64(i) / 4
		trk := newTrack(tr.Config().Seed, i, -1,
			State{Energy: e0, Dir: geom.Vec{0, 0, 1}})
		require.True(t, trk.collide(ion, m))

		require.Len(t, trk.children, 1)
		assert.Equal(t, 1, trk.ions)
		sum := trk.state.Energy + trk.children[0].Energy
		assert.LessOrEqual(t, sum, e0)
		assert.InDelta(t, e0 - ion.Threshold, sum, 1e-9)
		assert.InDelta(t, 1, trk.children[0].Dir.Norm(), 1e-12)
	}
}

func TestDeterminism(t *testing.T) {
	s := gap(t, -40000, 0.02, arIsobutane(t, 1, 60))

	run := func(workers int, obs Observer) *Aggregator {
		opts := []Option{}
		if obs != nil { opts = append(opts, WithObserver(obs)) }
		tr := tracker(t, s, Config{Seed: 5, Workers: workers, MaxElectrons: 300},
			opts...)
		agg, err := tr.AvalancheElectron(
			context.Background(), 0, 0, 0.001, 0, 1, 0, 0, 0,
		)
		require.NoError(t, err)
		return agg
	}

	serial := run(1, nil)
	checkConsistent(t, serial)
	electrons, _ := serial.AvalancheSize()
	require.Greater(t, electrons, 1)

	parallel := run(4, nil)
	assert.Equal(t, serial.Endpoints(), parallel.Endpoints())
	assert.Equal(t, serial.Truncated(), parallel.Truncated())

	n := 0
	observed := run(4, ObserverFunc(func(Sample) { n++ }))
	assert.Equal(t, serial.Endpoints(), observed.Endpoints())
	assert.GreaterOrEqual(t, n, 2 * electrons)
}

func TestAvalancheSeeded(t *testing.T) {
	s := gap(t, -1000, 0.02, arIsobutane(t, 1, 120))
	tr := tracker(t, s, Config{Workers: 1})
	start := State{Pos: geom.Vec{0, 0, 0.01}, Energy: 100}

	want := make([]*Aggregator, 4)
	for seed := range want {
		tr.SetSeed(uint64(seed))
		agg, err := tr.Avalanche(context.Background(), start)
		require.NoError(t, err)
		want[seed] = agg
	}

	got := make([]*Aggregator, len(want))
	g := new(errgroup.Group)
	for seed := range got {
		g.Go(func() error {
			agg, err := tr.AvalancheSeeded(
				context.Background(), uint64(seed), start,
			)
			got[seed] = agg
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := range want {
		assert.Equal(t, want[i].Endpoints(), got[i].Endpoints())
	}
}

func TestSetSeedConcurrent(t *testing.T) {
	s := gap(t, -1000, 0.02, arIsobutane(t, 1, 120))
	tr := tracker(t, s, Config{Workers: 1})
	start := State{Pos: geom.Vec{0, 0, 0.01}, Energy: 100}

	seeds := []uint64{3, 5}
	want := make([][]Endpoint, len(seeds))
	for i, seed := range seeds {
		agg, err := tr.AvalancheSeeded(context.Background(), seed, start)
		require.NoError(t, err)
		want[i] = agg.Endpoints()
	}

	// Every avalanche runs with one of the seeds, whichever SetSeed call it
	// happens to follow.
	got := make([][]Endpoint, 16)
	g := new(errgroup.Group)
	for i := range got {
		g.Go(func() error {
			tr.SetSeed(seeds[i%len(seeds)])
			agg, err := tr.Avalanche(context.Background(), start)
			if err != nil { return err }
			got[i] = agg.Endpoints()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := range got {
		assert.Contains(t, want, got[i])
	}

	tr.SetSeed(5)
	assert.Equal(t, uint64(5), tr.Config().Seed)
}

func TestGain(t *testing.T) {
	// Electrons injected well above the ionisation threshold multiply.
	s := gap(t, -1000, 0.02, arIsobutane(t, 1, 120))
	tr := tracker(t, s, Config{Workers: 2})

	sum, sum2, runs := 0.0, 0.0, 20
	for seed := 0; seed < runs; seed++ {
		tr.SetSeed(uint64(seed))
		agg, err := tr.AvalancheElectron(
			context.Background(), 0, 0, 0.01, 0, 100, 0, 0, 0,
		)
		require.NoError(t, err)
		checkConsistent(t, agg)

		electrons, _ := agg.AvalancheSize()
		sum += float64(electrons)
		sum2 += float64(electrons * electrons)
	}

	mean := sum / float64(runs)
	variance := sum2 / float64(runs) - mean*mean
	assert.Greater(t, mean, 1.0)
	// 100 eV and at most 10 eV from the field can free at most 110 / 10.67
	// electrons.
	assert.Less(t, variance, 100.0)
	assert.LessOrEqual(t, mean, 1 + 110 / 10.67)
}

func TestTruncation(t *testing.T) {
	s := gap(t, -1000, 0.02, arIsobutane(t, 1, 120))
	tr := tracker(t, s, Config{Workers: 1, MaxElectrons: 2})

	found := false
	for seed := uint64(0); seed < 50 && !found; seed++ {
		tr.SetSeed(seed)
		agg, err := tr.AvalancheElectron(
			context.Background(), 0, 0, 0.01, 0, 100, 0, 0, 0,
		)
		require.NoError(t, err)
		checkConsistent(t, agg)

		electrons, _ := agg.AvalancheSize()
		assert.LessOrEqual(t, electrons, 2)
		if agg.Truncated() {
			found = true
			assert.Equal(t, 2, agg.EndpointCount())
			for _, ep := range agg.Endpoints() {
				assert.True(t, ep.Status.Terminal())
			}
		}
	}
	assert.True(t, found, "no avalanche reached the cap")
}

func TestCancel(t *testing.T) {
	s := gap(t, -1000, 0.02, arIsobutane(t, 1, 40))
	tr := tracker(t, s, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg, err := tr.AvalancheElectron(ctx, 0, 0, 0.01, 0, 1, 0, 0, 0)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, agg)
	assert.True(t, agg.Truncated())
	assert.Equal(t, 1, agg.EndpointCount())
	assert.Equal(t, Alive, agg.EndpointAt(0).Status)
}

func TestTerminalStatuses(t *testing.T) {
	m := arIsobutane(t, 0, 40)

	// No medium.
	s := gap(t, -1000, 0.02, nil)
	tr := tracker(t, s, Config{Workers: 1})
	agg, err := tr.AvalancheElectron(context.Background(), 0, 0, 0.01, 0, 1, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Absorbed, agg.EndpointAt(0).Status)
	assert.Equal(t, agg.EndpointAt(0).Start, agg.EndpointAt(0).End)

	// Drifting out of the only source but not out of the sensor.
	box := geom.NewBox(geom.Vec{-1, -1, 0}, geom.Vec{1, 1, 1})
	u, err := field.NewUniform(geom.Vec{0, 0, -1000},
		geom.NewBox(geom.Vec{-1, -1, 0}, geom.Vec{1, 1, 0.01}), 0, m)
	require.NoError(t, err)
	s, err = sensor.New(box)
	require.NoError(t, err)
	require.NoError(t, s.AddComponent(u))

	tr = tracker(t, s, Config{Workers: 1})
	agg, err = tr.AvalancheElectron(context.Background(), 0, 0, 0.008, 0, 1, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, OutOfRange, agg.EndpointAt(0).Status)
	assert.Equal(t, 1, agg.StatusCount(OutOfRange))

	// Starting outside the sensor.
	agg, err = tr.AvalancheElectron(context.Background(), 0, 0, 2, 0, 1, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, LeftVolume, agg.EndpointAt(0).Status)
}

func TestAttachment(t *testing.T) {
	require.NoError(t, gas.RegisterSpecies(gas.Species{
		Name: "sticky", Mass: 146, IonisationPotential: 15.7,
	}))
	m := gas.New()
	require.NoError(t, m.SetComposition(gas.Component{Species: "sticky", Fraction: 100}))
	require.NoError(t, m.AddCrossSection(gas.CrossSection{
		Species: "sticky", Type: gas.Elastic,
		Energies: []float64{0, 100}, Sigma: []float64{1e-16, 1e-16},
	}))
	require.NoError(t, m.AddCrossSection(gas.CrossSection{
		Species: "sticky", Type: gas.Attachment,
		Energies: []float64{0, 100}, Sigma: []float64{1e-16, 1e-16},
	}))
	require.NoError(t, m.Initialise(false))

	tr := tracker(t, gap(t, -1000, 0.5, m), Config{Workers: 1})
	agg, err := tr.AvalancheElectron(context.Background(), 0, 0, 0.01, 0, 1, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Attached, agg.EndpointAt(0).Status)
}

func TestPenning(t *testing.T) {
	m := gas.New()
	require.NoError(t, m.SetComposition(
		gas.Component{Species: "ar", Fraction: 90},
		gas.Component{Species: "ic4h10", Fraction: 10},
	))
	require.NoError(t, m.ScaleIonisation(0))
	require.NoError(t, m.EnablePenningTransfer(1, 0.001, "ar"))
	require.NoError(t, m.SetMaxElectronEnergy(40))
	require.NoError(t, m.Initialise(true))

	s := gap(t, -1000, 0.05, m)
	tr := tracker(t, s, Config{Workers: 1})

	total := 0
	for seed := uint64(0); seed < 10; seed++ {
		tr.SetSeed(seed)
		agg, err := tr.AvalancheElectron(
			context.Background(), 0, 0, 0.025, 0, 35, 0, 0, 0,
		)
		require.NoError(t, err)
		checkConsistent(t, agg)

		for i := 1; i < agg.EndpointCount(); i++ {
			assert.InDelta(t, 11.55 - 10.67, agg.EndpointAt(i).Start.Energy, 1e-12)
		}
		_, ions := agg.AvalancheSize()
		total += ions
	}
	assert.Greater(t, total, 0)
}

func TestNewErrors(t *testing.T) {
	box := geom.NewBox(geom.Vec{0, 0, 0}, geom.Vec{1, 1, 1})
	empty, err := sensor.New(box)
	require.NoError(t, err)
	_, err = New(empty, Config{})
	assert.ErrorIs(t, err, ErrConfig)

	uninit := gas.New()
	_, err = New(gap(t, -1000, 1, uninit), Config{})
	assert.ErrorIs(t, err, ErrConfig)

	s := gap(t, -1000, 1, arIsobutane(t, 1, 40))
	for _, cfg := range []Config{
		{MaxElectrons: -1}, {CollisionSteps: -2}, {Workers: -1},
	}{
		_, err = New(s, cfg)
		assert.ErrorIs(t, err, ErrConfig, "%+v", cfg)
	}

	tr := tracker(t, s, Config{})
	assert.Equal(t, DefaultCollisionSteps, tr.Config().CollisionSteps)
	_, err = tr.AvalancheElectron(context.Background(),
		0, 0, 0.5, 0, math.NaN(), 0, 0, 0)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = tr.AvalancheElectron(context.Background(),
		0, 0, 0.5, 0, -1, 0, 0, 0)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "LEFT_VOLUME", LeftVolume.String())
	assert.False(t, Drifting.Terminal())
	assert.True(t, Attached.Terminal())
	assert.Equal(t, "UNKNOWN", Status(42).String())

	for s := Alive; s <= LeftVolume; s++ {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("UNKNOWN")
	assert.Error(t, err)
}

func BenchmarkDrift(b *testing.B) {
	s := gap(b, -1000, 0.01, arIsobutane(b, 0, 40))
	tr := tracker(b, s, Config{Workers: 1})
	for i := 0; i < b.N; i++ {
		tr.SetSeed(uint64(i))
		tr.AvalancheElectron(context.Background(), 0, 0, 0.001, 0, 1, 0, 0, 0)
	}
}
