package gas

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/phil-mansfield/tgem/math/interpolate"
)

const (
	// DefaultEnergyBins is the number of bins in the collision rate table.
	DefaultEnergyBins = 2000
	// DefaultMaxElectronEnergy is the upper end of the rate table in eV.
	DefaultMaxElectronEnergy = 40.0
	// Composition percentages must sum to 100 within this tolerance.
	compositionTol = 1e-3
)

// Model is a gas mixture and its transport tables.
type Model struct {
	components            []Component
	pressure, temperature float64

	penning                    bool
	penningProb, penningLength float64
	penningSpecies             string

	dataDir          string
	mobilityTables   map[string][2][]float64
	requiredMobility []string

	custom    []CrossSection
	ionScale  float64
	maxEnergy float64
	bins      int

	log *slog.Logger

	// Derived by Initialise.
	initialised bool
	density     float64
	processes   []Process
	cumRates    []float64
	dE          float64
	maxRate     float64
	mobility    map[string]*interpolate.Spline
}

// Option configures a Model.
type Option func(*Model)

// WithDataDir sets the directory which tabulated cross sections and
// relative ion mobility files are read from.
func WithDataDir(dir string) Option { return func(m *Model) { m.dataDir = dir } }

// WithLogger sets the model's logger.
func WithLogger(log *slog.Logger) Option { return func(m *Model) { m.log = log } }

// WithEnergyBins sets the resolution of the collision rate table.
func WithEnergyBins(n int) Option { return func(m *Model) { m.bins = n } }

// New creates an uninitialised model of an empty mixture at 760 Torr and
// 293.15 K.
func New(opts ...Option) *Model {
	m := &Model{
		pressure: 760, temperature: 293.15,
		ionScale: 1, maxEnergy: DefaultMaxElectronEnergy,
		bins:           DefaultEnergyBins,
		mobilityTables: map[string][2][]float64{},
		log:            slog.Default(),
	}
	for _, opt := range opts { opt(m) }
	m.log = m.log.With("module", "gas")
	return m
}

// SetComposition sets the components of the mixture. Percentages must sum
// to 100.
func (m *Model) SetComposition(comps ...Component) error {
	if len(comps) == 0 {
		return fmt.Errorf("%w: empty composition", ErrConfig)
	}

	sum := 0.0
	seen := map[string]bool{}
	out := make([]Component, len(comps))
	for i, c := range comps {
		s, ok := LookupSpecies(c.Species)
		if !ok {
			return fmt.Errorf("%w: unknown species '%s'", ErrConfig, c.Species)
		} else if !(c.Fraction >= 0) {
			return fmt.Errorf("%w: species '%s' has fraction %g",
				ErrConfig, c.Species, c.Fraction)
		} else if seen[s.Name] {
			return fmt.Errorf("%w: species '%s' given twice", ErrConfig, s.Name)
		}
		seen[s.Name] = true
		sum += c.Fraction
		out[i] = Component{s.Name, c.Fraction}
	}

	if math.Abs(sum - 100) > compositionTol {
		return fmt.Errorf("%w: composition sums to %g%%, not 100%%",
			ErrConfig, sum)
	}

	m.components = out
	m.initialised = false
	return nil
}

// SetPressure sets the pressure in Torr.
func (m *Model) SetPressure(p float64) error {
	if !(p > 0) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: pressure %g Torr", ErrConfig, p)
	}
	m.pressure, m.initialised = p, false
	return nil
}

// SetTemperature sets the temperature in K.
func (m *Model) SetTemperature(T float64) error {
	if !(T > 0) || math.IsInf(T, 0) {
		return fmt.Errorf("%w: temperature %g K", ErrConfig, T)
	}
	m.temperature, m.initialised = T, false
	return nil
}

// EnablePenningTransfer turns on Penning transfer with probability r from
// excitations of species. An empty species allows transfer from every
// component. If lambda is positive, transferred electrons are displaced by
// an exponentially distributed distance with mean lambda in cm.
func (m *Model) EnablePenningTransfer(r, lambda float64, species string) error {
	if !(r >= 0 && r <= 1) {
		return fmt.Errorf("%w: Penning probability %g", ErrConfig, r)
	} else if !(lambda >= 0) {
		return fmt.Errorf("%w: Penning transfer length %g", ErrConfig, lambda)
	}
	if species != "" {
		s, ok := LookupSpecies(species)
		if !ok {
			return fmt.Errorf("%w: unknown Penning species '%s'",
				ErrConfig, species)
		}
		species = s.Name
	}

	m.penning = true
	m.penningProb, m.penningLength, m.penningSpecies = r, lambda, species
	m.initialised = false
	return nil
}

// DisablePenningTransfer turns off Penning transfer.
func (m *Model) DisablePenningTransfer() {
	m.penning, m.penningProb, m.penningLength = false, 0, 0
	m.initialised = false
}

// ScaleIonisation multiplies every ionisation cross section by f.
func (m *Model) ScaleIonisation(f float64) error {
	if !(f >= 0) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: ionisation scale %g", ErrConfig, f)
	}
	m.ionScale, m.initialised = f, false
	return nil
}

// SetMaxElectronEnergy sets the upper end of the rate table in eV. Faster
// electrons use the rates of the last bin.
func (m *Model) SetMaxElectronEnergy(e float64) error {
	if !(e > 0) || math.IsInf(e, 0) {
		return fmt.Errorf("%w: maximum electron energy %g eV", ErrConfig, e)
	}
	m.maxEnergy, m.initialised = e, false
	return nil
}

// AddCrossSection adds a cross section to the model. A species with any
// added cross sections uses only those.
func (m *Model) AddCrossSection(cs CrossSection) error {
	s, ok := LookupSpecies(cs.Species)
	if !ok {
		return fmt.Errorf("%w: unknown species '%s'", ErrConfig, cs.Species)
	}
	if err := checkTable(cs.Energies, cs.Sigma); err != nil {
		return fmt.Errorf("%w: %s %s cross section: %s",
			ErrConfig, s.Name, cs.Type, err.Error())
	}
	if cs.Type != Elastic && !(cs.Threshold >= 0) {
		return fmt.Errorf("%w: %s %s threshold %g",
			ErrConfig, s.Name, cs.Type, cs.Threshold)
	}

	cs.Species = s.Name
	m.custom = append(m.custom, cs)
	m.initialised = false
	return nil
}

func checkTable(xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("%d energies but %d values", len(xs), len(ys))
	} else if len(xs) < 2 {
		return fmt.Errorf("only %d rows", len(xs))
	}
	for i := range xs {
		if i > 0 && !(xs[i] > xs[i-1]) {
			return fmt.Errorf("energies not strictly increasing at row %d", i)
		} else if !(ys[i] >= 0) || math.IsInf(ys[i], 0) {
			return fmt.Errorf("invalid value %g at row %d", ys[i], i)
		}
	}
	return nil
}

// Name returns the species of the mixture joined by slashes, e.g.
// "ar/ic4h10".
func (m *Model) Name() string {
	names := make([]string, len(m.components))
	for i, c := range m.components { names[i] = c.Species }
	return strings.Join(names, "/")
}

// Composition returns a copy of the mixture's components.
func (m *Model) Composition() []Component {
	return append([]Component{}, m.components...)
}

func (m *Model) Pressure() float64 { return m.pressure }
func (m *Model) Temperature() float64 { return m.temperature }
func (m *Model) MaxElectronEnergy() float64 { return m.maxEnergy }
func (m *Model) Initialised() bool { return m.initialised }

// NumberDensity returns the total number density in cm^-3.
func (m *Model) NumberDensity() float64 {
	return NumberDensity(m.pressure, m.temperature)
}

// PenningTransfer returns the Penning transfer probability and length. Both
// are zero when transfer is disabled.
func (m *Model) PenningTransfer() (prob, length float64) {
	if !m.penning { return 0, 0 }
	return m.penningProb, m.penningLength
}

// Processes returns the collision processes of an initialised model.
func (m *Model) Processes() []Process { return m.processes }
