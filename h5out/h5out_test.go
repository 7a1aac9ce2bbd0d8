package h5out

import (
	"context"
	"path/filepath"
	"testing"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/tgem/avalanche"
	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/gas"
	"github.com/phil-mansfield/tgem/geom"
	"github.com/phil-mansfield/tgem/sensor"
)

func testAvalanches(
	t *testing.T, n int, opts ...avalanche.Option,
) []*avalanche.Aggregator {
	m := gas.New()
	require.NoError(t, m.SetComposition(
		gas.Component{Species: "ar", Fraction: 90},
		gas.Component{Species: "ic4h10", Fraction: 10},
	))
	require.NoError(t, m.SetMaxElectronEnergy(120))
	require.NoError(t, m.Initialise(true))

	box := geom.NewBox(geom.Vec{-1, -1, 0}, geom.Vec{1, 1, 0.02})
	u, err := field.NewUniform(geom.Vec{0, 0, -1000}, box, 0, m)
	require.NoError(t, err)
	s, err := sensor.New(box)
	require.NoError(t, err)
	require.NoError(t, s.AddComponent(u))
	tr, err := avalanche.New(s, avalanche.Config{Workers: 1}, opts...)
	require.NoError(t, err)

	aggs := make([]*avalanche.Aggregator, n)
	for i := range aggs {
		aggs[i], err = tr.AvalancheSeeded(context.Background(), uint64(i),
			avalanche.State{Pos: geom.Vec{0, 0, 0.01}, Energy: 100})
		require.NoError(t, err)
	}
	return aggs
}

func readTable[T any](t *testing.T, f *hdf5.File, name string) []T {
	dset, err := f.OpenDataset(name)
	require.NoError(t, err)
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	rows := make([]T, space.SimpleExtentNPoints())
	require.NoError(t, dset.Read(&rows))
	return rows
}

func TestWriteAvalanche(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "avalanches.h5")
	w, err := Create(fname, 4)
	require.NoError(t, err)

	aggs := testAvalanches(t, 3)
	total := 0
	for run, agg := range aggs {
		require.NoError(t, w.WriteAvalanche(run, uint64(run), agg))
		total += agg.EndpointCount()
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	runs := readTable[RunRow](t, f, "/Avalanche/runs")
	require.Len(t, runs, len(aggs))
	for i, agg := range aggs {
		electrons, ions := agg.AvalancheSize()
		assert.Equal(t, int32(i), runs[i].Run)
		assert.Equal(t, uint64(i), runs[i].Seed)
		assert.Equal(t, int64(electrons), runs[i].Electrons)
		assert.Equal(t, int64(ions), runs[i].Ions)
	}

	eps := readTable[EndpointRow](t, f, "/Avalanche/endpoints")
	require.Len(t, eps, total)
	k := 0
	for run, agg := range aggs {
		for i := 0; i < agg.EndpointCount(); i++ {
			assert.Equal(t, newEndpointRow(run, agg.EndpointAt(i)), eps[k])
			k++
		}
	}
}

func TestTrajectorySamples(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "samples.h5")
	w, err := Create(fname, 0)
	require.NoError(t, err)

	var want []SampleRow
	obs := avalanche.ObserverFunc(func(smp avalanche.Sample) {
		want = append(want, newSampleRow(smp))
		w.Observe(smp)
	})
	aggs := testAvalanches(t, 2, avalanche.WithObserver(obs))
	for run, agg := range aggs {
		require.NoError(t, w.WriteAvalanche(run, uint64(run), agg))
	}
	require.NoError(t, w.Close())

	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	samples := readTable[SampleRow](t, f, "/Avalanche/samples")
	require.NotEmpty(t, want)
	assert.Equal(t, want, samples)

	// Every track is sampled at its start and at its end.
	seeds := map[uint64]int{}
	for _, smp := range samples {
		if smp.Status == int32(avalanche.Alive) { seeds[smp.Seed]++ }
	}
	for run, agg := range aggs {
		assert.Equal(t, agg.EndpointCount(), seeds[uint64(run)])
	}
}
