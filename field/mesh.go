package field

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/tgem/geom"
)

// GasPermittivity is the relative permittivity which marks a material as a
// gas.
const GasPermittivity = 1.0

// Node is a mesh vertex and the potential the solver found there.
type Node struct {
	Pos       geom.Vec
	Potential float64
}

// Element is a tetrahedron. Nodes holds 4 indices for linear elements or 10
// for quadratic ones, ordered as the four vertices followed by the midpoints
// of the edges 12, 23, 31, 14, 24 and 34.
type Element struct {
	Nodes    []int
	Material int
}

// Material is a mesh body.
type Material struct {
	Permittivity float64
}

// IsGas returns true if the material is a gas.
func (m Material) IsGas() bool { return m.Permittivity == GasPermittivity }

// Mesh is the output of a field solver: nodes with potentials, elements
// and a table of materials.
type Mesh struct {
	Nodes     []Node
	Elements  []Element
	Materials []Material
}

// Quadratic edge ordering: the two vertices joined by each edge node.
var edgeVertices = [6][2]int{
	{0, 1}, {1, 2}, {2, 0}, {0, 3}, {1, 3}, {2, 3},
}

// Validate checks that every element references existing nodes and
// materials and that all elements have the same order.
func (m *Mesh) Validate() error {
	if len(m.Nodes) == 0 {
		return fmt.Errorf("%w: mesh has no nodes", ErrMesh)
	} else if len(m.Elements) == 0 {
		return fmt.Errorf("%w: mesh has no elements", ErrMesh)
	}

	for i, n := range m.Nodes {
		if !n.Pos.IsFinite() || math.IsNaN(n.Potential) ||
			math.IsInf(n.Potential, 0) {
			return fmt.Errorf("%w: node %d is not finite", ErrMesh, i)
		}
	}

	order := len(m.Elements[0].Nodes)
	if order != 4 && order != 10 {
		return fmt.Errorf("%w: element 0 has %d nodes", ErrMesh, order)
	}

	for i, e := range m.Elements {
		if len(e.Nodes) != order {
			return fmt.Errorf(
				"%w: element %d has %d nodes, but element 0 has %d",
				ErrMesh, i, len(e.Nodes), order,
			)
		}
		for _, n := range e.Nodes {
			if n < 0 || n >= len(m.Nodes) {
				return fmt.Errorf("%w: element %d references node %d of %d",
					ErrMesh, i, n, len(m.Nodes))
			}
		}
		if e.Material < 0 || e.Material >= len(m.Materials) {
			return fmt.Errorf("%w: element %d has material %d of %d",
				ErrMesh, i, e.Material, len(m.Materials))
		}
	}

	for i, mat := range m.Materials {
		if !(mat.Permittivity >= 1) {
			return fmt.Errorf("%w: material %d has permittivity %g",
				ErrMesh, i, mat.Permittivity)
		}
	}

	return nil
}

// Quadratic returns true if the mesh is made of 10-node elements.
func (m *Mesh) Quadratic() bool {
	return len(m.Elements) > 0 && len(m.Elements[0].Nodes) == 10
}

// Bounds returns the bounding box of the mesh's nodes.
func (m *Mesh) Bounds() geom.Box {
	b := geom.Box{Min: m.Nodes[0].Pos, Max: m.Nodes[0].Pos}
	for i := range m.Nodes {
		b.Expand(m.Nodes[i].Pos)
	}
	return b
}

// Tetra returns the tetrahedron spanned by the vertices of element i.
func (m *Mesh) Tetra(i int) *geom.Tetra {
	n := m.Elements[i].Nodes
	return geom.NewTetra(
		m.Nodes[n[0]].Pos, m.Nodes[n[1]].Pos,
		m.Nodes[n[2]].Pos, m.Nodes[n[3]].Pos,
	)
}
