/*package tgem simulates electron avalanches in gas electron multipliers.

A Detector is assembled from an Avalanche configuration file: a field map
read from the output of a finite element solver (or a uniform field), a gas
model, and the sensor that combines them. A Campaign runs many avalanches in
a Detector and forwards each to a set of sinks.
*/
package tgem

import (
	"fmt"
	"log/slog"

	"github.com/phil-mansfield/tgem/avalanche"
	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/gas"
	"github.com/phil-mansfield/tgem/io"
	"github.com/phil-mansfield/tgem/sensor"
)

// Detector is a sensor filled with gas and the tracker which runs
// avalanches in it.
type Detector struct {
	Gas *gas.Model
	// Map is nil when the field is uniform.
	Map     *field.Map
	Uniform *field.Uniform
	Sensor  *sensor.Sensor
	Tracker *avalanche.Tracker
}

// NewGas creates and initialises the gas described by a [Gas] section.
func NewGas(con *io.GasConfig, log *slog.Logger) (*gas.Model, error) {
	m := gas.New(gas.WithDataDir(con.DataDir), gas.WithLogger(log))

	comps := make([]gas.Component, len(con.Species))
	for i := range comps {
		comps[i] = gas.Component{
			Species: con.Species[i], Fraction: con.Fraction[i],
		}
	}

	if err := m.SetComposition(comps...); err != nil { return nil, err }
	if err := m.SetPressure(con.Pressure); err != nil { return nil, err }
	if err := m.SetTemperature(con.Temperature); err != nil { return nil, err }
	if err := m.SetMaxElectronEnergy(con.MaxElectronEnergy); err != nil {
		return nil, err
	}
	if err := m.ScaleIonisation(con.IonisationScale); err != nil {
		return nil, err
	}

	if con.PenningProbability > 0 {
		err := m.EnablePenningTransfer(
			con.PenningProbability, con.PenningLength, con.PenningSpecies,
		)
		if err != nil { return nil, err }
	}

	files, err := con.IonMobilityFiles()
	if err != nil { return nil, fmt.Errorf("%w: %v", gas.ErrConfig, err) }
	for species, fname := range files {
		if err := m.LoadIonMobility(species, fname); err != nil {
			return nil, err
		}
		m.RequireIonMobility(species)
	}

	if err := m.Initialise(con.Strict); err != nil { return nil, err }
	return m, nil
}

// NewFieldMap reads the mesh described by a [Mesh] section and fills its
// gas elements with med.
func NewFieldMap(
	con *io.MeshConfig, med field.Medium, log *slog.Logger,
) (*field.Map, error) {
	mesh, err := io.ReadMesh(con.MeshFiles())
	if err != nil { return nil, err }

	opts := []field.Option{
		field.EnableConvergenceWarnings(con.ConvergenceWarnings),
		field.WithLogger(log),
	}
	if con.PeriodicX { opts = append(opts, field.EnablePeriodicityX()) }
	if con.PeriodicY { opts = append(opts, field.EnablePeriodicityY()) }
	if con.PeriodicZ { opts = append(opts, field.EnablePeriodicityZ()) }

	fm, err := field.NewMap(mesh, opts...)
	if err != nil { return nil, err }

	if n := fm.AssignGas(med); n == 0 {
		return nil, fmt.Errorf("%w: mesh has no gas elements", field.ErrMesh)
	}
	return fm, nil
}

// NewDetector builds the detector described by a configuration file.
func NewDetector(
	w *io.AvalancheWrapper, log *slog.Logger, opts ...avalanche.Option,
) (*Detector, error) {
	if log == nil { log = slog.Default() }
	d := &Detector{}

	var err error
	if d.Gas, err = NewGas(&w.Gas, log); err != nil { return nil, err }

	var src field.Source
	if w.UsesMesh() {
		d.Map, err = NewFieldMap(&w.Mesh, d.Gas, log)
		if err != nil { return nil, err }
		src = d.Map
	} else {
		u := &w.UniformField
		d.Uniform, err = field.NewUniform(u.Field(), u.Box(), u.V0, d.Gas)
		if err != nil { return nil, err }
		src = d.Uniform
	}

	if d.Sensor, err = sensor.New(w.Sensor.Box()); err != nil {
		return nil, err
	}
	if err = d.Sensor.AddComponent(src); err != nil { return nil, err }

	a := &w.Avalanche
	cfg := avalanche.Config{
		MaxElectrons: a.MaxElectrons, CollisionSteps: a.CollisionSteps,
		Workers: a.Workers, Seed: uint64(a.Seed),
	}
	opts = append([]avalanche.Option{avalanche.WithLogger(log)}, opts...)
	if d.Tracker, err = avalanche.New(d.Sensor, cfg, opts...); err != nil {
		return nil, err
	}

	log.Info("detector ready", "gas", d.Gas.Name(),
		"mesh", w.UsesMesh(), "seed", a.Seed)
	return d, nil
}

// Start returns the state of the primary electron given by the
// [Avalanche] section.
func Start(con *io.AvalancheConfig) avalanche.State {
	pos, dir := con.Start()
	return avalanche.State{Pos: pos, Dir: dir, Time: con.T, Energy: con.Energy}
}
