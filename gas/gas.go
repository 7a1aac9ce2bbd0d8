/*package gas models the transport properties of a gas mixture: electron
collision rates as a function of energy, Penning transfer and ion mobility.

A Model is configured with its setters, then Initialise computes the rate
tables. After that the Model is read-only and can be shared between
goroutines.

Units are eV for energies, cm^2 for cross sections, ns^-1 for collision
rates, Torr for pressures and K for temperatures.
*/
package gas

import (
	"errors"
	"math"
)

var (
	// ErrConfig is wrapped by errors caused by invalid configuration.
	ErrConfig = errors.New("gas: invalid configuration")
	// ErrNotInitialised is returned by queries on a model which has not
	// been initialised.
	ErrNotInitialised = errors.New("gas: model not initialised")
)

const (
	// SpeedOfLight in cm/ns.
	SpeedOfLight = 29.9792458
	// ElectronMass is m_e c^2 in eV.
	ElectronMass = 510998.95
	// ElectronMassAMU is the electron mass in atomic mass units.
	ElectronMassAMU = 5.48579909065e-4
	// Boltzmann constant in J/K.
	Boltzmann = 1.380649e-23
	// TorrToPa converts pressures from Torr to Pa.
	TorrToPa = 101325.0 / 760
	// Loschmidt is the number density of an ideal gas at 0 C and 1 atm in
	// cm^-3.
	Loschmidt = 2.686780111e19
	// Townsend is 1 Td in V cm^2.
	Townsend = 1e-17
)

// ElectronSpeed returns the speed in cm/ns of an electron with kinetic
// energy e. Motion is treated non-relativistically.
func ElectronSpeed(e float64) float64 {
	if e <= 0 { return 0 }
	return SpeedOfLight * math.Sqrt(2 * e / ElectronMass)
}

// NumberDensity returns the number density in cm^-3 of an ideal gas.
func NumberDensity(pressure, temperature float64) float64 {
	return pressure * TorrToPa / (Boltzmann * temperature) * 1e-6
}

// ProcessType is the kind of a collision process.
type ProcessType int

const (
	Elastic ProcessType = iota
	// Excitation is an electronic excitation. Only these can lead to
	// Penning transfer.
	Excitation
	// Inelastic covers other non-ionising energy losses, such as
	// vibrational and rotational excitation.
	Inelastic
	Ionisation
	Attachment
)

var processNames = []string{
	"elastic", "excitation", "inelastic", "ionisation", "attachment",
}

func (t ProcessType) String() string {
	if t < 0 || int(t) >= len(processNames) { return "unknown" }
	return processNames[t]
}

// ParseProcessType is the inverse of ProcessType.String.
func ParseProcessType(s string) (ProcessType, bool) {
	for i, name := range processNames {
		if s == name { return ProcessType(i), true }
	}
	return 0, false
}

// Process is one collision channel of one component of the mixture.
type Process struct {
	Species string
	Type    ProcessType
	// Threshold is the energy lost in the collision. For ionisation it is
	// the ionisation potential.
	Threshold float64
	// MassRatio is 2 m_e / M, the fraction of energy lost in a head-on
	// elastic collision.
	MassRatio float64
	// OPBWidth is the Opal-Peterson-Beaty splitting parameter used to
	// share energy between the electrons leaving an ionisation.
	OPBWidth float64
	// PenningEnergy is the kinetic energy of the electron freed if this
	// excitation is transferred to another component, or zero if it
	// cannot be.
	PenningEnergy float64
}

// ProcessRate is the rate of a single process at a given energy.
type ProcessRate struct {
	Process *Process
	Rate    float64
}

// Component is one species of a mixture and its percentage.
type Component struct {
	Species  string
	Fraction float64
}

// CrossSection is a tabulated cross section. Below Threshold it is zero,
// beyond the table it is constant.
type CrossSection struct {
	Species   string
	Type      ProcessType
	Threshold float64
	// OPBWidth overrides the species' splitting parameter if non-zero.
	OPBWidth        float64
	Energies, Sigma []float64
}
