package field

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/phil-mansfield/tgem/geom"
)

// Barycentric tolerance for deciding that a point is inside an element.
const insideTol = 1e-10

// NoMedium is the medium index of elements without a transport medium.
const NoMedium = -1

// Map interpolates the solution of a field solver over a tetrahedral mesh.
//
// A Map is configured with NewMap and AssignGas or SetMedium. After that it
// is read-only and may be queried from any number of goroutines.
type Map struct {
	mesh    *Mesh
	frames  []geom.BaryFrame
	valid   []bool
	buckets *geom.Buckets
	box     geom.Box
	width   geom.Vec

	periodic [3]bool
	warn     bool
	warnings atomic.Int64
	log      *slog.Logger

	media          []Medium
	materialMedium []int
	elementMedium  []int
}

// Option configures a Map.
type Option func(*Map)

// EnablePeriodicityX makes the map periodic along x with the mesh's extent
// as its period.
func EnablePeriodicityX() Option { return func(m *Map) { m.periodic[0] = true } }

// EnablePeriodicityY makes the map periodic along y.
func EnablePeriodicityY() Option { return func(m *Map) { m.periodic[1] = true } }

// EnablePeriodicityZ makes the map periodic along z.
func EnablePeriodicityZ() Option { return func(m *Map) { m.periodic[2] = true } }

// EnableConvergenceWarnings logs numerical warnings as they happen. Warnings
// are counted either way.
func EnableConvergenceWarnings(on bool) Option {
	return func(m *Map) { m.warn = on }
}

// WithLogger sets the logger used for warnings.
func WithLogger(log *slog.Logger) Option {
	return func(m *Map) { m.log = log }
}

// NewMap validates a mesh and prepares it for point queries. Degenerate
// elements are skipped with a warning.
func NewMap(mesh *Mesh, opts ...Option) (*Map, error) {
	if err := mesh.Validate(); err != nil { return nil, err }

	m := &Map{mesh: mesh, log: slog.Default()}
	for _, opt := range opts { opt(m) }
	m.log = m.log.With("module", "field")

	m.box = mesh.Bounds()
	m.width = m.box.Width()
	for i := 0; i < 3; i++ {
		if m.periodic[i] && !(m.width[i] > 0) {
			return nil, fmt.Errorf(
				"%w: periodic axis %d has zero extent", ErrConfig, i,
			)
		}
	}

	m.frames = make([]geom.BaryFrame, len(mesh.Elements))
	m.valid = make([]bool, len(mesh.Elements))
	m.buckets = geom.NewBuckets(
		m.box, geom.BucketCells(m.box, len(mesh.Elements)),
	)

	skipped := 0
	for i := range mesh.Elements {
		tet := mesh.Tetra(i)
		f, err := tet.BaryFrame()
		if err != nil {
			skipped++
			m.warning("skipping element", "element", i, "err", err)
			continue
		}
		m.frames[i], m.valid[i] = *f, true
		m.buckets.Insert(i, tet.Bounds())
	}
	if skipped == len(mesh.Elements) {
		return nil, fmt.Errorf("%w: every element is degenerate", ErrMesh)
	}

	m.materialMedium = make([]int, len(mesh.Materials))
	for i := range m.materialMedium { m.materialMedium[i] = NoMedium }
	m.elementMedium = make([]int, len(mesh.Elements))
	m.updateElementMedia()

	m.log.Debug("mesh loaded", "nodes", len(mesh.Nodes),
		"elements", len(mesh.Elements), "quadratic", mesh.Quadratic(),
		"skipped", skipped)
	return m, nil
}

func (m *Map) warning(msg string, args ...any) {
	m.warnings.Add(1)
	if m.warn { m.log.Warn(msg, args...) }
}

// Warnings returns the number of numerical warnings raised so far.
func (m *Map) Warnings() int64 { return m.warnings.Load() }

// Bounds returns the bounding box of the mesh.
func (m *Map) Bounds() geom.Box { return m.box }

// Mesh returns the underlying mesh.
func (m *Map) Mesh() *Mesh { return m.mesh }

// AssignGas assigns med to every gas material, i.e. every material with a
// permittivity of one, and returns the number of such materials.
func (m *Map) AssignGas(med Medium) int {
	n := 0
	idx := m.addMedium(med)
	for i, mat := range m.mesh.Materials {
		if mat.IsGas() {
			m.materialMedium[i] = idx
			n++
		}
	}
	m.updateElementMedia()
	return n
}

// SetMedium assigns med to a single material. Only gas materials can carry
// a transport medium.
func (m *Map) SetMedium(material int, med Medium) error {
	if material < 0 || material >= len(m.mesh.Materials) {
		return fmt.Errorf("%w: material %d does not exist", ErrConfig, material)
	} else if !m.mesh.Materials[material].IsGas() {
		return fmt.Errorf("%w: material %d has permittivity %g and is not a gas",
			ErrConfig, material, m.mesh.Materials[material].Permittivity)
	}
	m.materialMedium[material] = m.addMedium(med)
	m.updateElementMedia()
	return nil
}

func (m *Map) addMedium(med Medium) int {
	for i := range m.media {
		if m.media[i] == med { return i }
	}
	m.media = append(m.media, med)
	return len(m.media) - 1
}

func (m *Map) updateElementMedia() {
	for i, e := range m.mesh.Elements {
		m.elementMedium[i] = m.materialMedium[e.Material]
	}
}

// MediumIndex returns the index into Media of the medium of element i, or
// NoMedium.
func (m *Map) MediumIndex(i int) int { return m.elementMedium[i] }

// Media returns the media which have been assigned to the map.
func (m *Map) Media() []Medium { return m.media }

// fold moves p into the primary cell along the periodic axes.
func (m *Map) fold(p geom.Vec) geom.Vec {
	for i := 0; i < 3; i++ {
		if m.periodic[i] {
			p[i] = geom.Fold(p[i], m.box.Min[i], m.width[i])
		}
	}
	return p
}

// locate returns the element containing p, its barycentric coordinates and
// true, or false if p is outside the mesh.
func (m *Map) locate(p geom.Vec) (int, [4]float64, bool) {
	p = m.fold(p)
	cands := m.buckets.Candidates(p)
	for _, c := range cands {
		l := m.frames[c].Coords(p)
		if geom.Inside(l, insideTol) { return int(c), l, true }
	}

	if cands != nil {
		m.warning("point inside mesh bounds but not in any element", "p", p)
	}
	return -1, [4]float64{}, false
}

// InDomain returns true if p lies inside an element of the mesh.
func (m *Map) InDomain(p geom.Vec) bool {
	if !m.box.Contains(m.fold(p)) { return false }
	_, _, ok := m.locate(p)
	return ok
}

// ElementAt returns the index of the element containing p.
func (m *Map) ElementAt(p geom.Vec) (int, bool) {
	e, _, ok := m.locate(p)
	return e, ok
}

// PotentialAt returns the potential at p.
func (m *Map) PotentialAt(p geom.Vec) (float64, Status) {
	e, l, ok := m.locate(p)
	if !ok { return 0, OutOfRange }

	n, nodes := m.mesh.Elements[e].Nodes, m.mesh.Nodes
	if len(n) == 4 {
		v := 0.0
		for i := 0; i < 4; i++ { v += l[i] * nodes[n[i]].Potential }
		return v, OK
	}

	v := 0.0
	for i := 0; i < 4; i++ {
		v += l[i] * (2*l[i] - 1) * nodes[n[i]].Potential
	}
	for k, ev := range edgeVertices {
		v += 4 * l[ev[0]] * l[ev[1]] * nodes[n[4+k]].Potential
	}
	return v, OK
}

// FieldAt returns the electric field, -grad V, at p.
func (m *Map) FieldAt(p geom.Vec) (geom.Vec, Status) {
	e, l, ok := m.locate(p)
	if !ok { return geom.Vec{}, OutOfRange }

	n, nodes, f := m.mesh.Elements[e].Nodes, m.mesh.Nodes, &m.frames[e]
	var grad [4]geom.Vec
	for i := 0; i < 4; i++ { grad[i] = f.Gradient(i) }

	E := geom.Vec{}
	if len(n) == 4 {
		for i := 0; i < 4; i++ {
			E.AddSelf(grad[i].Scale(-nodes[n[i]].Potential))
		}
		return E, OK
	}

	for i := 0; i < 4; i++ {
		E.AddSelf(grad[i].Scale(-(4*l[i] - 1) * nodes[n[i]].Potential))
	}
	for k, ev := range edgeVertices {
		a, b := ev[0], ev[1]
		dN := grad[a].Scale(l[b]).Add(grad[b].Scale(l[a])).Scale(4)
		E.AddSelf(dN.Scale(-nodes[n[4+k]].Potential))
	}
	return E, OK
}

// MediumAt returns the medium at p. Points in solid materials or outside
// the mesh have no medium.
func (m *Map) MediumAt(p geom.Vec) (Medium, bool) {
	e, _, ok := m.locate(p)
	if !ok { return nil, false }
	idx := m.elementMedium[e]
	if idx == NoMedium { return nil, false }
	return m.media[idx], true
}
