package gas

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/phil-mansfield/table"

	"github.com/phil-mansfield/tgem/math/interpolate"
)

// LoadIonMobility reads the mobility of the ions of a species from a table
// with two columns: the reduced field E/N in Td and the reduced mobility at
// standard density in cm^2 / (V s). Relative paths are resolved against the
// data directory.
func (m *Model) LoadIonMobility(species, fname string) error {
	sp, ok := LookupSpecies(species)
	if !ok {
		return fmt.Errorf("%w: unknown ion species '%s'", ErrConfig, species)
	}
	if !filepath.IsAbs(fname) && m.dataDir != "" {
		fname = filepath.Join(m.dataDir, fname)
	}

	cols, err := table.ReadTable(fname, []int{0, 1}, nil)
	if err != nil {
		return fmt.Errorf("%w: reading ion mobility of %s: %w",
			ErrConfig, sp.Name, err)
	}
	if err := checkTable(cols[0], cols[1]); err != nil {
		return fmt.Errorf("%w: ion mobility file %s: %s",
			ErrConfig, fname, err.Error())
	}

	m.mobilityTables[sp.Name] = [2][]float64{cols[0], cols[1]}
	m.initialised = false
	return nil
}

// RequireIonMobility makes Initialise fail unless the mobilities of the
// given species have been loaded.
func (m *Model) RequireIonMobility(species ...string) {
	m.requiredMobility = append(m.requiredMobility, species...)
	m.initialised = false
}

func (m *Model) initMobility() error {
	for _, name := range m.requiredMobility {
		sp, ok := LookupSpecies(name)
		if !ok {
			return fmt.Errorf("%w: unknown ion species '%s'", ErrConfig, name)
		} else if _, ok := m.mobilityTables[sp.Name]; !ok {
			return fmt.Errorf("%w: no ion mobility loaded for '%s'",
				ErrConfig, sp.Name)
		}
	}

	m.mobility = map[string]*interpolate.Spline{}
	for name, t := range m.mobilityTables {
		m.mobility[name] = interpolate.NewSpline(t[0], t[1])
	}
	return nil
}

// IonMobility returns the mobility in cm^2 / (V ns) of the ions of species
// in a field of magnitude E in V/cm. Fields outside the table use the
// nearest tabulated value.
func (m *Model) IonMobility(species string, E float64) (float64, error) {
	if !m.initialised { return 0, ErrNotInitialised }

	sp, _ := LookupSpecies(species)
	spl, ok := m.mobility[sp.Name]
	if !ok {
		return 0, fmt.Errorf("%w: no ion mobility for '%s'", ErrConfig, species)
	}

	EN := math.Abs(E) / m.density / Townsend
	K0 := interpolate.Clamp(spl, EN)
	return K0 * Loschmidt / m.density * 1e-9, nil
}
