package io

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phil-mansfield/table"

	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/geom"
)

// ErrFormat is wrapped by every error caused by a malformed input file.
var ErrFormat = errors.New("io: malformed file")

// FileError records the file that a read failed on.
type FileError struct {
	Filename string
	Err      error
}

func (e *FileError) Error() string {
	if e == nil || e.Err == nil {
		return "io: file error"
	}
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

func (e *FileError) Unwrap() error {
	if e == nil { return nil }
	return e.Err
}

// Elmer element type codes.
const (
	linearTetra    = 504
	quadraticTetra = 510
)

var unitScales = map[string]float64{
	"cm": 1, "mm": 0.1, "um": 1e-4, "micron": 1e-4, "m": 100,
}

// UnitScale returns the factor which converts lengths in unit to cm.
func UnitScale(unit string) (float64, error) {
	scale, ok := unitScales[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("%w: unrecognized length unit '%s'",
			ErrFormat, unit)
	}
	return scale, nil
}

// MeshFiles names the files written by the field solver.
type MeshFiles struct {
	Nodes, Elements, Dielectrics, Potentials string
	// Unit is the length unit of the node coordinates.
	Unit string
}

// MeshFiles returns the resolved file names given by the [Mesh] section.
func (con *MeshConfig) MeshFiles() MeshFiles {
	return MeshFiles{
		Nodes: con.Path(con.Nodes), Elements: con.Path(con.Elements),
		Dielectrics: con.Path(con.Dielectrics),
		Potentials:  con.Path(con.Potentials),
		Unit:        con.Unit,
	}
}

// ReadMesh reads an Elmer mesh together with its material table and nodal
// potentials. Node and body ids in the files are 1-based; the returned mesh
// is indexed from zero.
func ReadMesh(files MeshFiles) (*field.Mesh, error) {
	scale, err := UnitScale(files.Unit)
	if err != nil { return nil, err }

	m := &field.Mesh{}
	nodeIdx, err := readNodes(files.Nodes, scale, m)
	if err != nil { return nil, err }
	if err = readElements(files.Elements, nodeIdx, m); err != nil {
		return nil, err
	}
	if err = readDielectrics(files.Dielectrics, m); err != nil {
		return nil, err
	}
	if err = readPotentials(files.Potentials, nodeIdx, m); err != nil {
		return nil, err
	}

	if err = m.Validate(); err != nil { return nil, err }
	return m, nil
}

func readNodes(
	fname string, scale float64, m *field.Mesh,
) (map[int]int, error) {
	cols, err := table.ReadTable(fname, []int{0, 2, 3, 4}, nil)
	if err != nil { return nil, &FileError{fname, err} }

	ids, xs, ys, zs := cols[0], cols[1], cols[2], cols[3]
	m.Nodes = make([]field.Node, len(ids))
	nodeIdx := make(map[int]int, len(ids))
	for i := range ids {
		id := int(ids[i])
		if _, ok := nodeIdx[id]; ok {
			return nil, &FileError{fname,
				fmt.Errorf("%w: node %d is listed twice", ErrFormat, id)}
		}
		nodeIdx[id] = i
		m.Nodes[i].Pos = geom.Vec{xs[i] * scale, ys[i] * scale, zs[i] * scale}
	}
	return nodeIdx, nil
}

func readElements(fname string, nodeIdx map[int]int, m *field.Mesh) error {
	// The first three columns and four vertices are common to both element
	// types. They determine how many columns are read afterwards.
	cols, err := table.ReadTable(fname, []int{0, 1, 2}, nil)
	if err != nil { return &FileError{fname, err} }
	if len(cols[0]) == 0 {
		return &FileError{fname, fmt.Errorf("%w: no elements", ErrFormat)}
	}

	bodies, types := cols[1], cols[2]
	typ := int(types[0])
	for i := range types {
		if int(types[i]) != typ {
			return &FileError{fname, fmt.Errorf(
				"%w: element %d has type %d, but element 0 has type %d",
				ErrFormat, i, int(types[i]), typ,
			)}
		}
	}

	var order int
	switch typ {
	case linearTetra: order = 4
	case quadraticTetra: order = 10
	default:
		return &FileError{fname, fmt.Errorf(
			"%w: element type %d is not a tetrahedron", ErrFormat, typ)}
	}

	nodeCols := make([]int, order)
	for i := range nodeCols { nodeCols[i] = 3 + i }
	cols, err = table.ReadTable(fname, nodeCols, nil)
	if err != nil { return &FileError{fname, err} }

	m.Elements = make([]field.Element, len(bodies))
	for i := range m.Elements {
		body := int(bodies[i])
		if body < 1 {
			return &FileError{fname, fmt.Errorf(
				"%w: element %d is in body %d", ErrFormat, i, body)}
		}

		nodes := make([]int, order)
		for j := range nodes {
			id := int(cols[j][i])
			idx, ok := nodeIdx[id]
			if !ok {
				return &FileError{fname, fmt.Errorf(
					"%w: element %d references unknown node %d",
					ErrFormat, i, id,
				)}
			}
			nodes[j] = idx
		}
		m.Elements[i] = field.Element{Nodes: nodes, Material: body - 1}
	}
	return nil
}

func readDielectrics(fname string, m *field.Mesh) error {
	cols, err := table.ReadTable(fname, []int{0, 1}, nil)
	if err != nil { return &FileError{fname, err} }

	ids, eps := cols[0], cols[1]
	n := 0
	for _, id := range ids {
		if int(id) > n { n = int(id) }
	}

	m.Materials = make([]field.Material, n)
	seen := make([]bool, n)
	for i := range ids {
		id := int(ids[i])
		if id < 1 {
			return &FileError{fname, fmt.Errorf(
				"%w: body id %d", ErrFormat, id)}
		}
		seen[id-1] = true
		m.Materials[id-1].Permittivity = eps[i]
	}
	for i := range seen {
		if !seen[i] {
			return &FileError{fname, fmt.Errorf(
				"%w: no permittivity for body %d", ErrFormat, i+1)}
		}
	}
	return nil
}

func readPotentials(fname string, nodeIdx map[int]int, m *field.Mesh) error {
	cols, err := table.ReadTable(fname, []int{0, 1}, nil)
	if err != nil { return &FileError{fname, err} }

	ids, vs := cols[0], cols[1]
	if len(ids) != len(m.Nodes) {
		return &FileError{fname, fmt.Errorf(
			"%w: %d potentials for %d nodes", ErrFormat, len(ids), len(m.Nodes),
		)}
	}
	for i := range ids {
		idx, ok := nodeIdx[int(ids[i])]
		if !ok {
			return &FileError{fname, fmt.Errorf(
				"%w: potential for unknown node %d", ErrFormat, int(ids[i]))}
		}
		m.Nodes[idx].Potential = vs[i]
	}
	return nil
}
