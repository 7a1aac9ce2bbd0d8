package geom

// Box is an axis-aligned bounding box. Min and Max are the lowermost and
// uppermost corners.
type Box struct {
	Min, Max Vec
}

// NewBox creates a box from two opposite corners given in any order.
func NewBox(c1, c2 Vec) Box {
	b := Box{}
	for i := 0; i < 3; i++ {
		b.Min[i], b.Max[i] = c1[i], c2[i]
		if c2[i] < c1[i] { b.Min[i], b.Max[i] = c2[i], c1[i] }
	}
	return b
}

// Width returns the extent of the box along each axis.
func (b Box) Width() Vec {
	return b.Max.Sub(b.Min)
}

// Degenerate returns true if any of the box's extents is not strictly
// positive.
func (b Box) Degenerate() bool {
	w := b.Width()
	return !(w[0] > 0 && w[1] > 0 && w[2] > 0)
}

// Contains returns true if the closed box contains v.
func (b Box) Contains(v Vec) bool {
	return b.Min[0] <= v[0] && v[0] <= b.Max[0] &&
		b.Min[1] <= v[1] && v[1] <= b.Max[1] &&
		b.Min[2] <= v[2] && v[2] <= b.Max[2]
}

// Expand grows the box so that it contains v.
func (b *Box) Expand(v Vec) {
	for i := 0; i < 3; i++ {
		if v[i] < b.Min[i] { b.Min[i] = v[i] }
		if v[i] > b.Max[i] { b.Max[i] = v[i] }
	}
}

// Intersect returns true if the two boxes overlap.
func (b Box) Intersect(o Box) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] { return false }
	}
	return true
}
