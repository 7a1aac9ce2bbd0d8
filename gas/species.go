package gas

import (
	"fmt"
	"strings"
	"sync"
)

// Species describes a component of a gas mixture.
type Species struct {
	Name string
	// Mass is the molecular mass in atomic mass units.
	Mass float64
	// IonisationPotential is in eV.
	IonisationPotential float64
	// OPBWidth is the default Opal-Peterson-Beaty parameter in eV.
	OPBWidth float64
}

var (
	registryLock sync.RWMutex
	registry     = map[string]Species{}
	aliases      = map[string]string{}
	builtin      = map[string][]CrossSection{}
)

// RegisterSpecies adds a species to the set which can be used in mixtures.
// Any aliases are accepted in place of its name.
func RegisterSpecies(s Species, alias ...string) error {
	if s.Name == "" || !(s.Mass > 0) || !(s.IonisationPotential > 0) {
		return fmt.Errorf("%w: species %+v needs a name, a mass and an "+
			"ionisation potential", ErrConfig, s)
	}
	if s.OPBWidth == 0 { s.OPBWidth = s.IonisationPotential / 2 }

	registryLock.Lock()
	defer registryLock.Unlock()

	name := strings.ToLower(s.Name)
	s.Name = name
	registry[name] = s
	for _, a := range alias { aliases[strings.ToLower(a)] = name }
	return nil
}

// LookupSpecies returns a registered species by name or alias.
func LookupSpecies(name string) (Species, bool) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	name = strings.ToLower(name)
	if real, ok := aliases[name]; ok { name = real }
	s, ok := registry[name]
	return s, ok
}

func builtinCrossSections(species string) []CrossSection {
	registryLock.RLock()
	defer registryLock.RUnlock()
	return builtin[species]
}

// xsTable turns (energy, sigma / 1e-16 cm^2) pairs into a cross section.
func xsTable(species string, t ProcessType, threshold float64, pairs ...float64) CrossSection {
	cs := CrossSection{Species: species, Type: t, Threshold: threshold}
	for i := 0; i < len(pairs); i += 2 {
		cs.Energies = append(cs.Energies, pairs[i])
		cs.Sigma = append(cs.Sigma, pairs[i+1] * 1e-16)
	}
	return cs
}

// The built-in cross sections are coarse fits to published data and are
// meant for gain studies, not precision transport.
func init() {
	RegisterSpecies(Species{
		Name: "ar", Mass: 39.948, IonisationPotential: 15.76, OPBWidth: 10,
	}, "argon")
	RegisterSpecies(Species{
		Name: "ic4h10", Mass: 58.12, IonisationPotential: 10.67, OPBWidth: 7,
	}, "isobutane", "i-c4h10")

	builtin["ar"] = []CrossSection{
		xsTable("ar", Elastic, 0,
			0, 7.5, 0.01, 4.2, 0.05, 1.6, 0.1, 0.7, 0.23, 0.1, 0.5, 0.35,
			1, 1.4, 2, 3.6, 5, 8.5, 10, 15, 15, 12, 20, 9.5, 30, 6.5,
			40, 5, 100, 2),
		xsTable("ar", Excitation, 11.55,
			11.55, 0, 12, 0.02, 13, 0.06, 15, 0.12, 20, 0.25, 30, 0.3,
			50, 0.26, 100, 0.19),
		xsTable("ar", Ionisation, 15.76,
			15.76, 0, 17, 0.09, 20, 0.38, 25, 0.95, 30, 1.55, 40, 2.25,
			50, 2.55, 70, 2.75, 100, 2.85),
	}
	builtin["ic4h10"] = []CrossSection{
		xsTable("ic4h10", Elastic, 0,
			0, 60, 0.05, 35, 0.1, 25, 0.3, 15, 1, 12, 3, 20, 5, 40,
			10, 45, 20, 35, 50, 20, 100, 12),
		xsTable("ic4h10", Inelastic, 0.16,
			0.16, 0, 0.2, 0.8, 0.5, 2, 1, 1.5, 3, 3, 5, 2.5, 10, 1,
			100, 0.2),
		xsTable("ic4h10", Inelastic, 0.36,
			0.36, 0, 0.5, 0.5, 1, 1, 3, 2, 5, 1.5, 10, 0.5, 100, 0.1),
		xsTable("ic4h10", Excitation, 7.4,
			7.4, 0, 9, 0.5, 12, 2, 20, 5, 40, 6, 100, 5),
		xsTable("ic4h10", Ionisation, 10.67,
			10.67, 0, 12, 0.3, 15, 1.5, 20, 4, 30, 7.5, 50, 11,
			100, 12.5),
	}
}
