package io

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/geom"
)

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	fname := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(fname, []byte(text), 0644))
	return fname
}

// A unit cube split into two tetrahedra sharing the face 1-2-3, with the
// second tetrahedron in a dielectric body.
const (
	testNodes = `1 -1 0 0 0
2 -1 1 0 0
3 -1 0 1 0
4 -1 0 0 1
5 -1 1 1 1
`
	testElements = `1 1 504 1 2 3 4
2 2 504 2 3 4 5
`
	testDielectrics = `1 1
2 4.3
`
	testPotentials = `1 0
2 -10
3 -20
4 -30
5 -60
`
)

func writeMesh(t *testing.T, elements string) MeshFiles {
	dir := t.TempDir()
	return MeshFiles{
		Nodes:       writeFile(t, dir, "mesh.nodes", testNodes),
		Elements:    writeFile(t, dir, "mesh.elements", elements),
		Dielectrics: writeFile(t, dir, "dielectrics.dat", testDielectrics),
		Potentials:  writeFile(t, dir, "potentials.dat", testPotentials),
		Unit:        "mm",
	}
}

func TestReadMesh(t *testing.T) {
	m, err := ReadMesh(writeMesh(t, testElements))
	require.NoError(t, err)

	require.Len(t, m.Nodes, 5)
	require.Len(t, m.Elements, 2)
	require.Len(t, m.Materials, 2)

	assert.InDelta(t, 0.1, m.Nodes[1].Pos[0], 1e-12)
	assert.InDelta(t, 0.1, m.Nodes[4].Pos[2], 1e-12)
	assert.Equal(t, -60.0, m.Nodes[4].Potential)

	assert.Equal(t, []int{0, 1, 2, 3}, m.Elements[0].Nodes)
	assert.Equal(t, []int{1, 2, 3, 4}, m.Elements[1].Nodes)
	assert.Equal(t, 0, m.Elements[0].Material)
	assert.Equal(t, 1, m.Elements[1].Material)

	assert.True(t, m.Materials[0].IsGas())
	assert.False(t, m.Materials[1].IsGas())
	assert.False(t, m.Quadratic())

	fm, err := field.NewMap(m)
	require.NoError(t, err)
	v, status := fm.PotentialAt(geom.Vec{0.01, 0.01, 0.01})
	assert.Equal(t, field.OK, status)
	assert.InDelta(t, -6.0, v, 1e-9)
}

func TestReadMeshErrors(t *testing.T) {
	tests := []struct {
		name, elements string
	}{
		{"mixed", "1 1 504 1 2 3 4\n2 1 510 1 2 3 4 5 1 2 3 4 5\n"},
		{"not a tetrahedron", "1 1 303 1 2 3\n"},
		{"unknown node", "1 1 504 1 2 3 9\n"},
		{"bad body", "1 0 504 1 2 3 4\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMesh(writeMesh(t, tt.elements))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)

			var ferr *FileError
			require.True(t, errors.As(err, &ferr))
			assert.Equal(t, "mesh.elements", filepath.Base(ferr.Filename))
		})
	}

	files := writeMesh(t, testElements)
	files.Unit = "furlong"
	_, err := ReadMesh(files)
	assert.ErrorIs(t, err, ErrFormat)

	files = writeMesh(t, testElements)
	files.Nodes = filepath.Join(t.TempDir(), "missing.nodes")
	_, err = ReadMesh(files)
	var ferr *FileError
	assert.True(t, errors.As(err, &ferr))
}

func TestUnitScale(t *testing.T) {
	for unit, want := range map[string]float64{
		"cm": 1, "mm": 0.1, "um": 1e-4, "M": 100,
	}{
		scale, err := UnitScale(unit)
		require.NoError(t, err, unit)
		assert.Equal(t, want, scale, unit)
	}
}

func TestFileError(t *testing.T) {
	var nilErr *FileError
	assert.Equal(t, "io: file error", nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())

	err := &FileError{"a.txt", ErrFormat}
	assert.Equal(t, "a.txt: io: malformed file", err.Error())
	assert.ErrorIs(t, err, ErrFormat)
}

func TestExampleAvalancheFile(t *testing.T) {
	fname := writeFile(t, t.TempDir(), "example.config", ExampleAvalancheFile)
	w, err := ReadAvalancheConfig(fname)
	require.NoError(t, err)

	assert.Equal(t, []string{"ar", "ic4h10"}, w.Gas.Species)
	assert.Equal(t, []float64{90, 10}, w.Gas.Fraction)
	assert.Equal(t, 760.0, w.Gas.Pressure)
	assert.True(t, w.Gas.Strict)
	assert.Equal(t, 1, w.Avalanche.Runs)
	assert.Equal(t, 100000, w.Avalanche.MaxElectrons)
	assert.Equal(t, 100, w.Avalanche.CollisionSteps)
	assert.True(t, w.UsesMesh())
	assert.Equal(t, "path/to/mesh/dir/mesh.nodes", w.Mesh.MeshFiles().Nodes)

	pos, dir := w.Avalanche.Start()
	assert.Equal(t, geom.Vec{0, 0, 0.02}, pos)
	assert.Equal(t, geom.Vec{}, dir)
	assert.False(t, w.Sensor.Box().Degenerate())
}

func TestAvalancheConfig(t *testing.T) {
	text := `[Avalanche]
X = 0
Y = 0
Z = 0.1
Energy = 1
Runs = 4
Seed = 7

[Gas]
Species = ar
Fraction = 100
IonMobility = ar:mobility.txt

[Sensor]
XMin = -1
YMin = -1
ZMin = 0
XMax = 1
YMax = 1
ZMax = 0.2

[UniformField]
EZ = -1000
XMin = -1
YMin = -1
ZMin = 0
XMax = 1
YMax = 1
ZMax = 0.2
`
	fname := writeFile(t, t.TempDir(), "uniform.config", text)
	w, err := ReadAvalancheConfig(fname)
	require.NoError(t, err)

	assert.False(t, w.UsesMesh())
	assert.Equal(t, geom.Vec{0, 0, -1000}, w.UniformField.Field())
	assert.Equal(t, int64(7), w.Avalanche.Seed)
	files, err := w.Gas.IonMobilityFiles()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ar": "mobility.txt"}, files)
}

func TestCheckInit(t *testing.T) {
	valid := func() *AvalancheWrapper {
		w := DefaultAvalancheWrapper()
		w.Avalanche.Energy = 1
		w.Gas.Species, w.Gas.Fraction = []string{"ar"}, []float64{100}
		w.Sensor.BoxConfig = BoxConfig{-1, -1, -1, 1, 1, 1}
		w.UniformField.BoxConfig = BoxConfig{-1, -1, -1, 1, 1, 1}
		return w
	}
	require.NoError(t, valid().CheckInit())

	tests := []struct {
		name   string
		modify func(w *AvalancheWrapper)
	}{
		{"runs", func(w *AvalancheWrapper) { w.Avalanche.Runs = 0 }},
		{"seed", func(w *AvalancheWrapper) { w.Avalanche.Seed = -1 }},
		{"energy", func(w *AvalancheWrapper) { w.Avalanche.Energy = -1 }},
		{"fractions", func(w *AvalancheWrapper) { w.Gas.Fraction = nil }},
		{"pressure", func(w *AvalancheWrapper) { w.Gas.Pressure = 0 }},
		{"penning", func(w *AvalancheWrapper) {
			w.Gas.PenningProbability = 2
		}},
		{"mobility", func(w *AvalancheWrapper) {
			w.Gas.IonMobility = []string{"ar"}
		}},
		{"sensor", func(w *AvalancheWrapper) { w.Sensor.XMax = -1 }},
		{"field", func(w *AvalancheWrapper) {
			w.UniformField.BoxConfig = BoxConfig{}
		}},
		{"database", func(w *AvalancheWrapper) { w.Output.Driver = "sqlite" }},
		{"trajectories", func(w *AvalancheWrapper) {
			w.Output.Trajectories = true
		}},
		{"mesh unit", func(w *AvalancheWrapper) {
			w.Mesh = MeshConfig{Nodes: "n", Elements: "e",
				Dielectrics: "d", Potentials: "p", Unit: "inch"}
		}},
		{"mesh elements", func(w *AvalancheWrapper) {
			w.Mesh = MeshConfig{Nodes: "n", Unit: "cm"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := valid()
			tt.modify(w)
			assert.Error(t, w.CheckInit())
		})
	}
}

func TestPlotGainConfig(t *testing.T) {
	fname := writeFile(t, t.TempDir(), "plot.config", ExamplePlotGainFile)
	con, err := ReadPlotGainConfig(fname)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", con.Driver)
	assert.Equal(t, 50, con.Bins)
	assert.Zero(t, con.Campaign)

	fname = writeFile(t, t.TempDir(), "bad.config", "[PlotGain]\nBins = 3\n")
	_, err = ReadPlotGainConfig(fname)
	assert.Error(t, err)

	fname = writeFile(t, t.TempDir(), "campaign.config", "[PlotGain]\n"+
		"Driver = sqlite\nDSN = a.db\nOutput = gain.png\nCampaign = 2\n")
	con, err = ReadPlotGainConfig(fname)
	require.NoError(t, err)
	assert.Equal(t, int64(2), con.Campaign)
}
