package gas

// bin returns the rate table bin of energy e.
func (m *Model) bin(e float64) int {
	i := int(e / m.dE)
	if i < 0 { return 0 }
	if i >= m.bins { return m.bins - 1 }
	return i
}

// CollisionRate returns the rate of every process at energy e.
func (m *Model) CollisionRate(e float64) ([]ProcessRate, error) {
	if !m.initialised { return nil, ErrNotInitialised }

	n := len(m.processes)
	cum := m.cumRates[m.bin(e)*n : m.bin(e)*n+n]
	out := make([]ProcessRate, n)
	prev := 0.0
	for k := range out {
		out[k] = ProcessRate{&m.processes[k], cum[k] - prev}
		prev = cum[k]
	}
	return out, nil
}

// TotalCollisionRate returns the sum of all process rates at energy e.
func (m *Model) TotalCollisionRate(e float64) (float64, error) {
	if !m.initialised { return 0, ErrNotInitialised }
	n := len(m.processes)
	return m.cumRates[m.bin(e)*n+n-1], nil
}

// MaxCollisionRate returns the largest total collision rate in the table.
// It is the rate of the null-collision method.
func (m *Model) MaxCollisionRate() float64 { return m.maxRate }

// SelectCollision chooses the process of a collision at energy e, given a
// uniform random number r in [0, 1) and the null-collision rate
// MaxCollisionRate. false is returned for null collisions.
func (m *Model) SelectCollision(e, r float64) (*Process, bool) {
	n := len(m.processes)
	target := r * m.maxRate
	cum := m.cumRates[m.bin(e)*n : m.bin(e)*n+n]
	for k := range cum {
		if target < cum[k] { return &m.processes[k], true }
	}
	return nil, false
}
