/*package field interpolates electrostatic fields supplied by an external
solver. The main type is Map, which evaluates the potential and field of a
tetrahedral finite element mesh at arbitrary points, and assigns transport
media to the gas-filled regions of the mesh. Uniform is a constant field over
a box.
*/
package field

import (
	"errors"

	"github.com/phil-mansfield/tgem/geom"
)

var (
	// ErrConfig is wrapped by errors caused by invalid configuration.
	ErrConfig = errors.New("field: invalid configuration")
	// ErrMesh is wrapped by errors caused by inconsistent mesh data.
	ErrMesh = errors.New("field: invalid mesh")
)

// Status describes the result of a field query.
type Status int

const (
	OK Status = iota
	// OutOfRange means that the point was not inside any element.
	OutOfRange
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case OutOfRange:
		return "OUT_OF_RANGE"
	}
	return "Status(?)"
}

// Medium is a transport medium which can be assigned to gas regions. The
// field package treats media as opaque values.
type Medium interface {
	Name() string
}

// Source is anything which can supply a field to a sensor.
type Source interface {
	// FieldAt returns the electric field in V/cm at p.
	FieldAt(p geom.Vec) (geom.Vec, Status)
	// PotentialAt returns the potential in V at p.
	PotentialAt(p geom.Vec) (float64, Status)
	// MediumAt returns the transport medium at p and true, or false if p is
	// outside the source or inside a region without a medium.
	MediumAt(p geom.Vec) (Medium, bool)
	// InDomain returns true if p lies within the region the source
	// describes.
	InDomain(p geom.Vec) bool
}

var (
	_ Source = &Map{}
	_ Source = &Uniform{}
)
