package io

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/tgem/geom"
)

const (
	ExampleAvalancheFile = `[Avalanche]

#######################
# Required Parameters #
#######################

# Starting point of the primary electron in cm and its starting time in ns.
X = 0
Y = 0
Z = 0.02
T = 0

# Kinetic energy of the primary electron in eV.
Energy = 0.1

#######################
# Optional Parameters #
#######################

# Starting direction of the primary electron. If unset, a random direction is
# chosen.
# DX = 0
# DY = 0
# DZ = -1

# Master seed. Run i of a campaign uses Seed + i. Default is 0.
# Seed = 0

# Number of avalanches to simulate. Default is 1.
# Runs = 100

# Number of electron tracks transported concurrently within an avalanche, and
# the number of avalanches run concurrently. Default is the number of CPUs.
# Workers = 8
# Parallel = 1

# Avalanches are truncated once they contain this many electrons. Default is
# 100000.
# MaxElectrons = 100000

# Number of collisions between trajectory samples. Default is 100.
# CollisionSteps = 100

[Gas]

# Each Species line must be paired with a Fraction line. Fractions are in
# percent and must sum to 100.
Species = ar
Fraction = 90
Species = ic4h10
Fraction = 10

# Torr and K.
Pressure = 760
Temperature = 293.15

# Strict initialisation fails if a component lacks elastic or ionisation
# cross sections.
# Strict = true

# Penning transfer from excitations of PenningSpecies with probability
# PenningProbability. PenningLength is in cm.
# PenningProbability = 0.51
# PenningLength = 0
# PenningSpecies = ar

# Directory containing tabulated cross sections (<species>_<process>.txt) and
# ion mobility files.
# DataDir = path/to/gas/data

# Ion mobility files given as species:file. File names are relative to
# DataDir.
# IonMobility = ar:IonMobility_Ar+_Ar.txt

# Upper end of the collision rate tables in eV. Default is 40.
# MaxElectronEnergy = 40

# Multiplies every ionisation cross section. Zero turns off multiplication.
# IonisationScale = 1

[Sensor]

# Lowermost and uppermost corners of the sensor volume in cm.
XMin = -0.0070
YMin = -0.0121
ZMin = -0.1
XMax = 0.0070
YMax = 0.0121
ZMax = 0.1

[Mesh]

# Output of the field solver. File names are relative to Dir.
Dir = path/to/mesh/dir
Nodes = mesh.nodes
Elements = mesh.elements
Dielectrics = dielectrics.dat
Potentials = potentials.dat

# Unit of the node coordinates: one of [ cm | mm | um | m ].
Unit = cm

# Periodic boundaries along the mesh's x and y extents.
# PeriodicX = true
# PeriodicY = true
# PeriodicZ = false

# Log numerical warnings found while reading the mesh and querying the field.
# ConvergenceWarnings = false

# A [UniformField] section can be given instead of [Mesh]:
# [UniformField]
# EX = 0
# EY = 0
# EZ = -1000
# XMin = -1
# YMin = -1
# ZMin = 0
# XMax = 1
# YMax = 1
# ZMax = 0.3

[Output]

# Output files which are useful for profiling and debugging. Generally, there
# isn't a reason to use these unless something goes wrong.
# ProfileFile = prof.out
# LogFile = log.out

# Avalanche sizes and endpoints are written to a SQL database, an HDF5 file,
# or both. Driver is one of [ sqlite | mysql ].
# Driver = sqlite
# DSN = avalanches.db
# HDF5File = avalanches.h5

# Also write sampled electron trajectories, one point every CollisionSteps
# collisions, to the HDF5 file. These tables get large quickly.
# Trajectories = false

# Histogram of avalanche sizes written once all runs have finished.
# GainPlot = gain.png

# OTLP/HTTP endpoint which campaign traces are exported to.
# TraceEndpoint = http://localhost:4318`

	ExamplePlotGainFile = `[PlotGain]

#######################
# Required Parameters #
#######################

# Database written by an Avalanche run.
Driver = sqlite
DSN = avalanches.db

# Image file the histogram is saved to.
Output = gain.png

#######################
# Optional Parameters #
#######################

# Number of histogram bins. Default is 50.
# Bins = 50

# Use a logarithmic y axis.
# LogY = false

# Only plot the runs of this campaign. By default, every run in the database
# is plotted.
# Campaign = 1`
)

// SharedConfig holds output options common to every mode.
type SharedConfig struct {
	LogFile, ProfileFile string
}

func (con *SharedConfig) ValidLogFile() bool {
	return con.LogFile != ""
}
func (con *SharedConfig) ValidProfileFile() bool {
	return con.ProfileFile != ""
}

type AvalancheConfig struct {
	// Required
	X, Y, Z, T, Energy float64

	// Optional
	DX, DY, DZ                   float64
	Seed                         int64
	Runs, Workers, Parallel      int
	MaxElectrons, CollisionSteps int
}

func (con *AvalancheConfig) ValidEnergy() bool { return con.Energy >= 0 }
func (con *AvalancheConfig) ValidSeed() bool { return con.Seed >= 0 }
func (con *AvalancheConfig) ValidRuns() bool { return con.Runs > 0 }
func (con *AvalancheConfig) ValidWorkers() bool { return con.Workers >= 0 }
func (con *AvalancheConfig) ValidParallel() bool { return con.Parallel > 0 }
func (con *AvalancheConfig) ValidMaxElectrons() bool {
	return con.MaxElectrons > 0
}
func (con *AvalancheConfig) ValidCollisionSteps() bool {
	return con.CollisionSteps > 0
}

// Start returns the starting position and direction of the primary
// electron.
func (con *AvalancheConfig) Start() (pos, dir geom.Vec) {
	return geom.Vec{con.X, con.Y, con.Z}, geom.Vec{con.DX, con.DY, con.DZ}
}

type GasConfig struct {
	// Required
	Species               []string
	Fraction              []float64
	Pressure, Temperature float64

	// Optional
	Strict                            bool
	PenningProbability, PenningLength float64
	PenningSpecies                    string
	DataDir                           string
	IonMobility                       []string
	MaxElectronEnergy                 float64
	IonisationScale                   float64
}

func (con *GasConfig) ValidComposition() bool {
	return len(con.Species) > 0 && len(con.Species) == len(con.Fraction)
}
func (con *GasConfig) ValidPressure() bool { return con.Pressure > 0 }
func (con *GasConfig) ValidTemperature() bool { return con.Temperature > 0 }
func (con *GasConfig) ValidPenning() bool {
	return con.PenningProbability >= 0 && con.PenningProbability <= 1 &&
		con.PenningLength >= 0
}
func (con *GasConfig) ValidIonMobility() bool {
	_, err := con.IonMobilityFiles()
	return err == nil
}
func (con *GasConfig) ValidMaxElectronEnergy() bool {
	return con.MaxElectronEnergy > 0
}
func (con *GasConfig) ValidIonisationScale() bool {
	return con.IonisationScale >= 0
}

// IonMobilityFiles splits the IonMobility values into species and file
// names.
func (con *GasConfig) IonMobilityFiles() (map[string]string, error) {
	out := map[string]string{}
	for _, val := range con.IonMobility {
		tok := strings.SplitN(val, ":", 2)
		if len(tok) != 2 || tok[0] == "" || tok[1] == "" {
			return nil, fmt.Errorf(
				"IonMobility value '%s' is not of the form species:file.", val,
			)
		}
		out[strings.TrimSpace(tok[0])] = strings.TrimSpace(tok[1])
	}
	return out, nil
}

// BoxConfig is an axis-aligned box given by its corners.
type BoxConfig struct {
	XMin, YMin, ZMin float64
	XMax, YMax, ZMax float64
}

func (con *BoxConfig) Box() geom.Box {
	return geom.NewBox(
		geom.Vec{con.XMin, con.YMin, con.ZMin},
		geom.Vec{con.XMax, con.YMax, con.ZMax},
	)
}

func (con *BoxConfig) ValidBox() bool { return !con.Box().Degenerate() }

type SensorConfig struct {
	BoxConfig
}

type UniformFieldConfig struct {
	BoxConfig
	EX, EY, EZ float64
	V0         float64
}

func (con *UniformFieldConfig) Field() geom.Vec {
	return geom.Vec{con.EX, con.EY, con.EZ}
}

type MeshConfig struct {
	// Required
	Nodes, Elements, Dielectrics, Potentials string

	// Optional
	Dir, Unit                       string
	PeriodicX, PeriodicY, PeriodicZ bool
	ConvergenceWarnings             bool
}

func (con *MeshConfig) ValidNodes() bool { return con.Nodes != "" }
func (con *MeshConfig) ValidElements() bool { return con.Elements != "" }
func (con *MeshConfig) ValidDielectrics() bool { return con.Dielectrics != "" }
func (con *MeshConfig) ValidPotentials() bool { return con.Potentials != "" }
func (con *MeshConfig) ValidUnit() bool {
	_, ok := unitScales[strings.ToLower(con.Unit)]
	return ok
}

// Path resolves a mesh file name against Dir.
func (con *MeshConfig) Path(fname string) string {
	if con.Dir == "" || filepath.IsAbs(fname) { return fname }
	return filepath.Join(con.Dir, fname)
}

type OutputConfig struct {
	SharedConfig
	Driver, DSN   string
	HDF5File      string
	Trajectories  bool
	GainPlot      string
	TraceEndpoint string
}

func (con *OutputConfig) ValidDatabase() bool {
	return (con.Driver == "") == (con.DSN == "")
}
func (con *OutputConfig) ValidTrajectories() bool {
	return !con.Trajectories || con.HDF5File != ""
}

type AvalancheWrapper struct {
	Avalanche    AvalancheConfig
	Gas          GasConfig
	Sensor       SensorConfig
	Mesh         MeshConfig
	UniformField UniformFieldConfig
	Output       OutputConfig
}

func DefaultAvalancheWrapper() *AvalancheWrapper {
	w := &AvalancheWrapper{}
	w.Avalanche.Runs = 1
	w.Avalanche.Parallel = 1
	w.Avalanche.MaxElectrons = 100000
	w.Avalanche.CollisionSteps = 100
	w.Gas.Pressure = 760
	w.Gas.Temperature = 293.15
	w.Gas.Strict = true
	w.Gas.MaxElectronEnergy = 40
	w.Gas.IonisationScale = 1
	w.Mesh.Unit = "cm"
	return w
}

// UsesMesh returns true if the field comes from a [Mesh] section rather than
// a [UniformField] section.
func (w *AvalancheWrapper) UsesMesh() bool { return w.Mesh.ValidNodes() }

// CheckInit returns an error describing the first invalid value.
func (w *AvalancheWrapper) CheckInit() error {
	a, g, m := &w.Avalanche, &w.Gas, &w.Mesh

	switch {
	case !a.ValidEnergy():
		return fmt.Errorf("Invalid 'Energy' value, %g.", a.Energy)
	case !a.ValidSeed():
		return fmt.Errorf("Invalid 'Seed' value, %d.", a.Seed)
	case !a.ValidRuns():
		return fmt.Errorf("Invalid 'Runs' value, %d.", a.Runs)
	case !a.ValidWorkers():
		return fmt.Errorf("Invalid 'Workers' value, %d.", a.Workers)
	case !a.ValidParallel():
		return fmt.Errorf("Invalid 'Parallel' value, %d.", a.Parallel)
	case !a.ValidMaxElectrons():
		return fmt.Errorf("Invalid 'MaxElectrons' value, %d.", a.MaxElectrons)
	case !a.ValidCollisionSteps():
		return fmt.Errorf("Invalid 'CollisionSteps' value, %d.",
			a.CollisionSteps)

	case !g.ValidComposition():
		return fmt.Errorf("Every 'Species' needs exactly one 'Fraction'.")
	case !g.ValidPressure():
		return fmt.Errorf("Invalid 'Pressure' value, %g.", g.Pressure)
	case !g.ValidTemperature():
		return fmt.Errorf("Invalid 'Temperature' value, %g.", g.Temperature)
	case !g.ValidPenning():
		return fmt.Errorf("Invalid 'PenningProbability' or 'PenningLength'.")
	case !g.ValidIonMobility():
		_, err := g.IonMobilityFiles()
		return err
	case !g.ValidMaxElectronEnergy():
		return fmt.Errorf("Invalid 'MaxElectronEnergy' value, %g.",
			g.MaxElectronEnergy)
	case !g.ValidIonisationScale():
		return fmt.Errorf("Invalid 'IonisationScale' value, %g.",
			g.IonisationScale)

	case !w.Sensor.ValidBox():
		return fmt.Errorf("The [Sensor] box is degenerate.")
	case !w.Output.ValidDatabase():
		return fmt.Errorf("'Driver' and 'DSN' must be set together.")
	case !w.Output.ValidTrajectories():
		return fmt.Errorf("'Trajectories' requires an 'HDF5File'.")
	}

	if w.UsesMesh() {
		switch {
		case !m.ValidElements():
			return fmt.Errorf("Invalid/non-existent 'Elements' value.")
		case !m.ValidDielectrics():
			return fmt.Errorf("Invalid/non-existent 'Dielectrics' value.")
		case !m.ValidPotentials():
			return fmt.Errorf("Invalid/non-existent 'Potentials' value.")
		case !m.ValidUnit():
			return fmt.Errorf("Unrecognized 'Unit' value, '%s'.", m.Unit)
		}
	} else if !w.UniformField.ValidBox() {
		return fmt.Errorf("Either a [Mesh] section or a non-degenerate " +
			"[UniformField] section is required.")
	}

	return nil
}

// ReadAvalancheConfig reads and checks an [Avalanche] configuration file.
func ReadAvalancheConfig(fname string) (*AvalancheWrapper, error) {
	wrap := DefaultAvalancheWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, &FileError{fname, err}
	}
	if err := wrap.CheckInit(); err != nil {
		return nil, &FileError{fname, err}
	}
	return wrap, nil
}

type PlotGainConfig struct {
	// Required
	Driver, DSN, Output string

	// Optional
	Bins     int
	LogY     bool
	Campaign int64
}

func (con *PlotGainConfig) ValidDatabase() bool {
	return con.Driver != "" && con.DSN != ""
}
func (con *PlotGainConfig) ValidOutput() bool { return con.Output != "" }
func (con *PlotGainConfig) ValidBins() bool { return con.Bins > 0 }
func (con *PlotGainConfig) ValidCampaign() bool { return con.Campaign >= 0 }

type PlotGainWrapper struct {
	PlotGain PlotGainConfig
}

func DefaultPlotGainWrapper() *PlotGainWrapper {
	w := &PlotGainWrapper{}
	w.PlotGain.Bins = 50
	return w
}

// ReadPlotGainConfig reads and checks a [PlotGain] configuration file.
func ReadPlotGainConfig(fname string) (*PlotGainConfig, error) {
	wrap := DefaultPlotGainWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, &FileError{fname, err}
	}

	con := &wrap.PlotGain
	if !con.ValidDatabase() {
		return nil, &FileError{fname, fmt.Errorf(
			"Invalid/non-existent 'Driver' or 'DSN' value.")}
	} else if !con.ValidOutput() {
		return nil, &FileError{fname, fmt.Errorf(
			"Invalid/non-existent 'Output' value.")}
	} else if !con.ValidBins() {
		return nil, &FileError{fname, fmt.Errorf(
			"Invalid 'Bins' value, %d.", con.Bins)}
	} else if !con.ValidCampaign() {
		return nil, &FileError{fname, fmt.Errorf(
			"Invalid 'Campaign' value, %d.", con.Campaign)}
	}
	return con, nil
}
