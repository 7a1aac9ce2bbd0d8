/*package sensor composes field sources into the volume inside which charges
are transported.
*/
package sensor

import (
	"errors"
	"fmt"

	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/geom"
)

// ErrConfig is wrapped by errors caused by invalid configuration.
var ErrConfig = errors.New("sensor: invalid configuration")

// Sensor is an axis-aligned box and the field sources inside it. Sources
// may overlap. The first registered source whose domain contains a point is
// the one used there.
type Sensor struct {
	box     geom.Box
	sources []field.Source
}

// New creates a sensor with no sources. The box must have a positive extent
// along every axis.
func New(box geom.Box) (*Sensor, error) {
	if box.Degenerate() || !box.Min.IsFinite() || !box.Max.IsFinite() {
		return nil, fmt.Errorf("%w: degenerate sensor volume %v to %v",
			ErrConfig, box.Min, box.Max)
	}
	return &Sensor{box: box}, nil
}

// AddComponent registers a field source. Sources added earlier take
// precedence.
func (s *Sensor) AddComponent(src field.Source) error {
	if src == nil {
		return fmt.Errorf("%w: nil field source", ErrConfig)
	}
	s.sources = append(s.sources, src)
	return nil
}

// Box returns the sensor's volume.
func (s *Sensor) Box() geom.Box { return s.box }

// Components returns the number of registered sources.
func (s *Sensor) Components() int { return len(s.sources) }

// Sources returns the registered sources in order of precedence.
func (s *Sensor) Sources() []field.Source {
	return append([]field.Source{}, s.sources...)
}

// Contains returns true if p is inside the sensor's volume.
func (s *Sensor) Contains(p geom.Vec) bool { return s.box.Contains(p) }

// FieldSourceAt returns the source which is authoritative at p and true,
// or false if p is outside the volume or outside every source.
func (s *Sensor) FieldSourceAt(p geom.Vec) (field.Source, bool) {
	if !s.Contains(p) { return nil, false }
	for _, src := range s.sources {
		if src.InDomain(p) { return src, true }
	}
	return nil, false
}
