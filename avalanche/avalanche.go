/*package avalanche simulates the multiplication of electrons drifting
through a gas in an electric field.

Electrons are transported one collision at a time with the null-collision
method. Between collisions they move ballistically in the local field.
Ionising collisions and Penning transfers spawn new electrons, which are
transported in turn until every track has ended. The terminal state of each
track is recorded in an Aggregator.

Runs are reproducible: each track draws from its own random stream, derived
from the tracker's seed and the track's spawn index, and spawn indices do not
depend on the number of workers.
*/
package avalanche

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/gas"
	"github.com/phil-mansfield/tgem/geom"
)

// ErrConfig is wrapped by errors caused by invalid configuration.
var ErrConfig = errors.New("avalanche: invalid configuration")

const (
	DefaultMaxElectrons   = 100000
	DefaultCollisionSteps = 100
	// Tracks check for cancellation after this many collisions.
	cancelCheckSteps = 4096
)

// Status is the state of an electron track.
type Status int

const (
	// Alive tracks have not been transported yet.
	Alive Status = iota
	Colliding
	Drifting
	// Absorbed tracks entered a region without a transport medium.
	Absorbed
	// OutOfRange tracks reached a point with no field.
	OutOfRange
	Attached
	LeftVolume
)

var statusNames = []string{
	"ALIVE", "COLLIDING", "DRIFTING",
	"ABSORBED", "OUT_OF_RANGE", "ATTACHED", "LEFT_VOLUME",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) { return "UNKNOWN" }
	return statusNames[s]
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for i := range statusNames {
		if statusNames[i] == name { return Status(i), nil }
	}
	return 0, fmt.Errorf("unrecognized status '%s'", name)
}

// Terminal returns true if a track with this status has ended.
func (s Status) Terminal() bool { return s >= Absorbed }

// State is the kinematic state of an electron. Positions are in cm, times
// in ns and energies in eV. Dir is a unit vector.
type State struct {
	Pos    geom.Vec
	Dir    geom.Vec
	Time   float64
	Energy float64
}

// Endpoint is the record of a finished track.
type Endpoint struct {
	Start, End State
	Status     Status
	// SpawnIndex is the order in which the track was created. The primary
	// electron has index 0.
	SpawnIndex int
	// ParentIndex is the spawn index of the track whose collision created
	// this one, or -1 for the primary.
	ParentIndex int
}

// Medium is a field.Medium which electrons can be transported through.
// *gas.Model implements it.
type Medium interface {
	field.Medium
	Initialised() bool
	MaxCollisionRate() float64
	SelectCollision(energy, r float64) (*gas.Process, bool)
	PenningTransfer() (prob, length float64)
}

var _ Medium = &gas.Model{}

// Config holds the numerical parameters of a Tracker.
type Config struct {
	// MaxElectrons caps the number of tracks in one avalanche, including
	// the primary. Avalanches which reach it are truncated.
	MaxElectrons int
	// CollisionSteps is the number of collisions between observer samples.
	CollisionSteps int
	// Workers is the number of tracks transported concurrently.
	Workers int
	Seed    uint64
}

// DefaultConfig returns the default configuration with seed 0.
func DefaultConfig() Config {
	return Config{
		MaxElectrons:   DefaultMaxElectrons,
		CollisionSteps: DefaultCollisionSteps,
		Workers:        runtime.GOMAXPROCS(0),
	}
}
