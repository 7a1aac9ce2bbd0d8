package gas

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/phil-mansfield/table"

	"github.com/phil-mansfield/tgem/math/interpolate"
)

type rateTerm struct {
	sigma     *interpolate.Linear
	threshold float64
	scale     float64
}

func (t *rateTerm) rate(e float64) float64 {
	if e < t.threshold { return 0 }
	return t.scale * interpolate.Clamp(t.sigma, e) * ElectronSpeed(e)
}

// Initialise computes the collision rate and ion mobility tables. If strict
// is true, a component without both elastic and ionisation cross sections
// is an error. Otherwise it is a warning and the component contributes
// whatever cross sections it has.
func (m *Model) Initialise(strict bool) error {
	m.initialised = false

	if len(m.components) == 0 {
		return fmt.Errorf("%w: no composition set", ErrConfig)
	} else if m.bins < 1 {
		return fmt.Errorf("%w: %d energy bins", ErrConfig, m.bins)
	}
	if m.penning && m.penningSpecies != "" && !m.hasComponent(m.penningSpecies) {
		return fmt.Errorf("%w: Penning species '%s' is not in the mixture",
			ErrConfig, m.penningSpecies)
	}

	m.density = m.NumberDensity()
	m.processes = m.processes[:0]
	terms := []rateTerm{}

	for _, c := range m.components {
		if c.Fraction == 0 { continue }
		sp, _ := LookupSpecies(c.Species)

		sets, src, err := m.crossSections(sp.Name)
		if err != nil { return err }

		if missing := coverage(sets); missing != "" {
			if strict {
				return fmt.Errorf("%w: species '%s' has no %s cross section",
					ErrConfig, sp.Name, missing)
			}
			m.log.Warn("incomplete cross sections", "species", sp.Name,
				"missing", missing)
		}

		for _, cs := range sets {
			p := Process{
				Species: sp.Name, Type: cs.Type, Threshold: cs.Threshold,
				MassRatio: 2 * ElectronMassAMU / sp.Mass,
			}
			scale := c.Fraction / 100 * m.density

			switch cs.Type {
			case Elastic:
				p.Threshold = 0
			case Ionisation:
				if p.Threshold == 0 { p.Threshold = sp.IonisationPotential }
				p.OPBWidth = sp.OPBWidth
				if cs.OPBWidth > 0 { p.OPBWidth = cs.OPBWidth }
				scale *= m.ionScale
			}

			m.processes = append(m.processes, p)
			terms = append(terms, rateTerm{
				interpolate.NewLinear(cs.Energies, cs.Sigma), p.Threshold, scale,
			})
		}
		m.log.Debug("loaded cross sections", "species", sp.Name,
			"source", src, "processes", len(sets))
	}

	m.setPenningEnergies()
	m.fillRates(terms)
	if m.maxRate == 0 {
		return fmt.Errorf("%w: mixture %s has no collision processes",
			ErrConfig, m.Name())
	}

	if err := m.initMobility(); err != nil { return err }

	m.initialised = true
	m.log.Info("gas initialised", "mixture", m.Name(),
		"pressure", m.pressure, "temperature", m.temperature,
		"processes", len(m.processes), "max_rate", m.maxRate)
	return nil
}

func (m *Model) hasComponent(species string) bool {
	for _, c := range m.components {
		if c.Species == species && c.Fraction > 0 { return true }
	}
	return false
}

// coverage returns the name of a required process type which is missing
// from sets, or "".
func coverage(sets []CrossSection) string {
	has := map[ProcessType]bool{}
	for _, cs := range sets { has[cs.Type] = true }
	for _, t := range []ProcessType{Elastic, Ionisation} {
		if !has[t] { return t.String() }
	}
	return ""
}

// crossSections returns the cross sections of a species and where they came
// from. Added cross sections take precedence over the data directory, which
// takes precedence over the built-in tables.
func (m *Model) crossSections(species string) ([]CrossSection, string, error) {
	var sets []CrossSection
	for _, cs := range m.custom {
		if cs.Species == species { sets = append(sets, cs) }
	}
	if len(sets) > 0 { return sets, "added", nil }

	if m.dataDir != "" {
		sets, err := m.readCrossSections(species)
		if err != nil { return nil, "", err }
		if len(sets) > 0 { return sets, m.dataDir, nil }
	}

	return builtinCrossSections(species), "built-in", nil
}

// readCrossSections reads the files <species>_<process>.txt from the data
// directory. Each has two columns: energy in eV and cross section in cm^2.
func (m *Model) readCrossSections(species string) ([]CrossSection, error) {
	sp, _ := LookupSpecies(species)
	sets := []CrossSection{}

	for i := range processNames {
		t := ProcessType(i)
		fname := filepath.Join(m.dataDir, species + "_" + t.String() + ".txt")
		if _, err := os.Stat(fname); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		cols, err := table.ReadTable(fname, []int{0, 1}, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrConfig, fname, err)
		}
		if err := checkTable(cols[0], cols[1]); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrConfig, fname, err.Error())
		}

		cs := CrossSection{
			Species: species, Type: t, Energies: cols[0], Sigma: cols[1],
		}
		switch t {
		case Ionisation:
			cs.Threshold = sp.IonisationPotential
		case Excitation, Inelastic:
			cs.Threshold = cols[0][0]
		}
		sets = append(sets, cs)
	}
	return sets, nil
}

// setPenningEnergies marks the excitations which can ionise another
// component of the mixture.
func (m *Model) setPenningEnergies() {
	for i := range m.processes {
		p := &m.processes[i]
		p.PenningEnergy = 0
		if !m.penning || p.Type != Excitation { continue }
		if m.penningSpecies != "" && p.Species != m.penningSpecies { continue }

		minIP := math.Inf(+1)
		for _, c := range m.components {
			if c.Species == p.Species || c.Fraction == 0 { continue }
			sp, _ := LookupSpecies(c.Species)
			minIP = math.Min(minIP, sp.IonisationPotential)
		}
		if p.Threshold > minIP { p.PenningEnergy = p.Threshold - minIP }
	}
}

// fillRates tabulates the cumulative rates of every process at the centre
// of each energy bin.
func (m *Model) fillRates(terms []rateTerm) {
	n := len(terms)
	m.dE = m.maxEnergy / float64(m.bins)
	m.cumRates = make([]float64, m.bins * n)
	m.maxRate = 0

	for i := 0; i < m.bins; i++ {
		e := (float64(i) + 0.5) * m.dE
		sum := 0.0
		for k := range terms {
			sum += terms[k].rate(e)
			m.cumRates[i*n+k] = sum
		}
		m.maxRate = math.Max(m.maxRate, sum)
	}
}
