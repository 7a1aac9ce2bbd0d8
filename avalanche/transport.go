package avalanche

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/phil-mansfield/tgem/field"
	"github.com/phil-mansfield/tgem/gas"
	"github.com/phil-mansfield/tgem/geom"
)

// accel converts a field in V/cm to the acceleration of an electron in
// cm/ns^2.
const accel = -gas.SpeedOfLight * gas.SpeedOfLight / gas.ElectronMass

// track is the mutable state of one electron. It is owned by a single
// goroutine while it is transported.
type track struct {
	seed          uint64
	index, parent int
	start, state  State
	status        Status
	rng           *rand.Rand

	collisions int
	ions       int
	children   []State
}

func (tr *track) endpoint() Endpoint {
	return Endpoint{
		Start: tr.start, End: tr.state, Status: tr.status,
		SpawnIndex: tr.index, ParentIndex: tr.parent,
	}
}

// env is what a track needs to know about its surroundings.
type env struct {
	E   geom.Vec
	med Medium
}

// locate looks up the field and medium at p. A terminal status is returned
// if the track cannot continue there.
func (t *Tracker) locate(p geom.Vec) (env, Status) {
	if !t.sensor.Contains(p) { return env{}, LeftVolume }

	src, ok := t.sensor.FieldSourceAt(p)
	if !ok { return env{}, OutOfRange }
	E, status := src.FieldAt(p)
	if status != field.OK { return env{}, OutOfRange }

	fm, ok := src.MediumAt(p)
	if !ok { return env{}, Absorbed }
	med, ok := fm.(Medium)
	if !ok || med.MaxCollisionRate() <= 0 { return env{}, Absorbed }

	return env{E, med}, Drifting
}

// transport follows a track until it ends or ctx is cancelled.
func (t *Tracker) transport(ctx context.Context, tr *track) {
	t.observe(tr)
	defer t.observe(tr)

	local, status := t.locate(tr.state.Pos)
	if status.Terminal() {
		tr.status = status
		return
	}
	tr.status = Drifting

	for steps := 1; ; steps++ {
		if steps%cancelCheckSteps == 0 && ctx.Err() != nil { return }

		tr.fly(local)
		local, status = t.locate(tr.state.Pos)
		if status.Terminal() {
			tr.status = status
			return
		}

		p, real := local.med.SelectCollision(tr.state.Energy, tr.rng.Float64())
		if !real {
			tr.status = Drifting
			continue
		}

		tr.status = Colliding
		tr.collisions++
		if !tr.collide(p, local.med) {
			tr.status = Attached
			return
		}
		if tr.collisions%t.cfg.CollisionSteps == 0 { t.observe(tr) }
	}
}

// fly moves the electron ballistically for an exponentially distributed
// time with the null-collision rate of the medium.
func (tr *track) fly(local env) {
	s := &tr.state
	dt := -math.Log(1 - tr.rng.Float64()) / local.med.MaxCollisionRate()

	a := local.E.Scale(accel)
	v0 := s.Dir.Scale(gas.ElectronSpeed(s.Energy))
	v1 := v0.Add(a.Scale(dt))

	s.Pos = s.Pos.Add(v0.Scale(dt)).Add(a.Scale(0.5 * dt * dt))
	s.Time += dt

	speed := v1.Norm()
	s.Energy = 0.5 * gas.ElectronMass * (speed*speed) /
		(gas.SpeedOfLight * gas.SpeedOfLight)
	if speed > 0 { s.Dir = v1.Scale(1 / speed) }
}

// collide applies a real collision to the track and returns false if the
// electron was attached.
func (tr *track) collide(p *gas.Process, med Medium) bool {
	s := &tr.state

	switch p.Type {
	case gas.Elastic:
		dir := isotropic(tr.rng)
		s.Energy -= s.Energy * p.MassRatio * (1 - s.Dir.Dot(dir))
		s.Dir = dir

	case gas.Excitation, gas.Inelastic:
		s.Energy = math.Max(s.Energy - p.Threshold, 0)
		s.Dir = isotropic(tr.rng)

		prob, length := med.PenningTransfer()
		if p.PenningEnergy > 0 && prob > 0 && tr.rng.Float64() < prob {
			child := State{
				Pos: s.Pos, Dir: isotropic(tr.rng),
				Time: s.Time, Energy: p.PenningEnergy,
			}
			if length > 0 {
				d := isotropic(tr.rng).Scale(tr.rng.ExpFloat64() * length)
				child.Pos = child.Pos.Add(d)
			}
			tr.spawn(child)
		}

	case gas.Ionisation:
		primary, secondary := SplitIonisation(
			s.Energy, p.Threshold, p.OPBWidth, tr.rng.Float64(),
		)
		s.Energy = primary
		s.Dir = isotropic(tr.rng)
		tr.spawn(State{
			Pos: s.Pos, Dir: isotropic(tr.rng), Time: s.Time, Energy: secondary,
		})

	case gas.Attachment:
		return false
	}
	return true
}

// spawn records a new electron and the ion left behind.
func (tr *track) spawn(child State) {
	tr.children = append(tr.children, child)
	tr.ions++
}

// SplitIonisation shares the energy of an ionising collision between the
// scattered and the ejected electron using the Opal-Peterson-Beaty
// distribution with width w, given a uniform random number u. The ejected
// electron never gets more than half of the available energy, and the two
// energies sum to e - ip, or zero if e < ip.
func SplitIonisation(e, ip, w, u float64) (primary, secondary float64) {
	avail := e - ip
	if avail <= 0 { return 0, 0 }
	if w <= 0 { return avail, 0 }

	secondary = w * math.Tan(u * math.Atan(avail / (2*w)))
	secondary = math.Min(secondary, avail / 2)
	return avail - secondary, secondary
}

// isotropic returns a random unit vector.
func isotropic(rng *rand.Rand) geom.Vec {
	cos := 1 - 2*rng.Float64()
	sin := math.Sqrt(math.Max(0, 1 - cos*cos))
	phi := 2 * math.Pi * rng.Float64()
	return geom.Vec{sin * math.Cos(phi), sin * math.Sin(phi), cos}
}
