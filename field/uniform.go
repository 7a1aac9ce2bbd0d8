package field

import (
	"fmt"

	"github.com/phil-mansfield/tgem/geom"
)

// Uniform is a constant field over a box filled with a single medium.
type Uniform struct {
	Field geom.Vec
	Box   geom.Box
	// V0 is the potential at Box.Min.
	V0     float64
	Medium Medium
}

// NewUniform creates a uniform field source. med may be nil, in which case
// the box is treated as solid.
func NewUniform(E geom.Vec, box geom.Box, V0 float64, med Medium) (*Uniform, error) {
	if box.Degenerate() {
		return nil, fmt.Errorf("%w: degenerate box %v", ErrConfig, box)
	} else if !E.IsFinite() {
		return nil, fmt.Errorf("%w: field %v is not finite", ErrConfig, E)
	}
	return &Uniform{Field: E, Box: box, V0: V0, Medium: med}, nil
}

func (u *Uniform) InDomain(p geom.Vec) bool { return u.Box.Contains(p) }

func (u *Uniform) FieldAt(p geom.Vec) (geom.Vec, Status) {
	if !u.InDomain(p) { return geom.Vec{}, OutOfRange }
	return u.Field, OK
}

func (u *Uniform) PotentialAt(p geom.Vec) (float64, Status) {
	if !u.InDomain(p) { return 0, OutOfRange }
	return u.V0 - u.Field.Dot(p.Sub(u.Box.Min)), OK
}

func (u *Uniform) MediumAt(p geom.Vec) (Medium, bool) {
	if u.Medium == nil || !u.InDomain(p) { return nil, false }
	return u.Medium, true
}

// Media returns the source's medium, if it has one.
func (u *Uniform) Media() []Medium {
	if u.Medium == nil { return nil }
	return []Medium{u.Medium}
}
