package geom

import (
	"math"
)

// Grid provides an interface for reasoning over a 1D slice as if it were a
// 3D grid.
type Grid struct {
	CellBounds
	Length, Area, Volume int
	uBounds              [3]int
}

// CellBounds represents a bounding box aligned to grid cells.
type CellBounds struct {
	Origin, Width [3]int
}

// NewGrid returns a new Grid instance.
func NewGrid(origin [3]int, width [3]int) *Grid {
	g := &Grid{}
	g.Init(origin, width)
	return g
}

// Init initializes a Grid instance.
func (g *Grid) Init(origin [3]int, width [3]int) {
	g.Origin, g.Width = origin, width

	g.Length = width[0]
	g.Area = width[0] * width[1]
	g.Volume = g.Area * width[2]

	for i := 0; i < 3; i++ {
		g.uBounds[i] = origin[i] + width[i]
	}
}

// Idx returns the grid index corresponding to a set of coordinates.
func (g *Grid) Idx(x, y, z int) int {
	return (x - g.Origin[0]) + (y - g.Origin[1])*g.Length +
		(z - g.Origin[2])*g.Area
}

// IdxCheck returns an index and true if the given coordinate are valid and
// false otherwise.
func (g *Grid) IdxCheck(x, y, z int) (idx int, ok bool) {
	if !g.BoundsCheck(x, y, z) {
		return -1, false
	}
	return g.Idx(x, y, z), true
}

// BoundsCheck returns true if the given coordinates are within the Grid and
// false otherwise.
func (g *Grid) BoundsCheck(x, y, z int) bool {
	return (g.Origin[0] <= x && g.Origin[1] <= y && g.Origin[2] <= z) &&
		(x < g.uBounds[0] && y < g.uBounds[1] && z < g.uBounds[2])
}

// Coords returns the x, y, z coordinates of a point from its grid index.
func (g *Grid) Coords(idx int) (x, y, z int) {
	x = idx%g.Length + g.Origin[0]
	y = (idx%g.Area)/g.Length + g.Origin[1]
	z = idx/g.Area + g.Origin[2]
	return x, y, z
}

// Buckets sorts objects with bounding boxes into the cells of a Grid laid
// over a region of space, so that the objects which might contain a point
// can be found without a linear scan.
type Buckets struct {
	Grid
	Box       Box
	cellWidth Vec
	cells     [][]int32
}

// NewBuckets creates a bucket grid over box with the given number of cells
// along each axis.
func NewBuckets(box Box, cells [3]int) *Buckets {
	b := &Buckets{Box: box}
	b.Grid.Init([3]int{}, cells)
	w := box.Width()
	for i := 0; i < 3; i++ {
		b.cellWidth[i] = w[i] / float64(cells[i])
	}
	b.cells = make([][]int32, b.Volume)
	return b
}

// BucketCells chooses a per-axis cell count for n objects spread over box,
// aiming for a few objects per cell.
func BucketCells(box Box, n int) [3]int {
	w := box.Width()
	vol := w[0] * w[1] * w[2]
	var cells [3]int
	if vol <= 0 || n <= 0 {
		return [3]int{1, 1, 1}
	}

	side := math.Cbrt(vol / float64(n))
	for i := 0; i < 3; i++ {
		cells[i] = int(math.Ceil(w[i] / side))
		if cells[i] < 1 { cells[i] = 1 }
		if cells[i] > 256 { cells[i] = 256 }
	}
	return cells
}

// cell returns the cell index along axis i of coordinate x, clamped to the
// grid.
func (b *Buckets) cell(x float64, i int) int {
	c := int(math.Floor((x - b.Box.Min[i]) / b.cellWidth[i]))
	if c < 0 { return 0 }
	if c >= b.Width[i] { return b.Width[i] - 1 }
	return c
}

// CellBounds returns the cells overlapped by a box.
func (b *Buckets) CellBounds(box Box) CellBounds {
	cb := CellBounds{}
	for i := 0; i < 3; i++ {
		lo, hi := b.cell(box.Min[i], i), b.cell(box.Max[i], i)
		cb.Origin[i], cb.Width[i] = lo, hi - lo + 1
	}
	return cb
}

// Insert adds the object id with bounding box bounds to every cell it
// overlaps.
func (b *Buckets) Insert(id int, bounds Box) {
	cb := b.CellBounds(bounds)
	for z := cb.Origin[2]; z < cb.Origin[2] + cb.Width[2]; z++ {
		for y := cb.Origin[1]; y < cb.Origin[1] + cb.Width[1]; y++ {
			for x := cb.Origin[0]; x < cb.Origin[0] + cb.Width[0]; x++ {
				idx := b.Idx(x, y, z)
				b.cells[idx] = append(b.cells[idx], int32(id))
			}
		}
	}
}

// Candidates returns the ids of all objects whose bounding boxes overlap
// the cell containing v. nil is returned if v is outside the grid's box.
// The returned slice must not be modified.
func (b *Buckets) Candidates(v Vec) []int32 {
	if !b.Box.Contains(v) { return nil }
	return b.cells[b.Idx(b.cell(v[0], 0), b.cell(v[1], 1), b.cell(v[2], 2))]
}
