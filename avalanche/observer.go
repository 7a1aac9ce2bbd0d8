package avalanche

// Sample is a snapshot of a track passed to an Observer.
type Sample struct {
	// Seed is the master seed of the avalanche the track belongs to.
	Seed uint64
	// Track is the spawn index of the track.
	Track int
	// Collisions is the number of real collisions so far.
	Collisions int
	State      State
	Status     Status
}

// Observer receives samples of every track: one when it starts, one every
// Config.CollisionSteps collisions and one when it ends. Calls are
// serialised, but samples of different tracks may be interleaved. Observers
// cannot influence the simulation.
type Observer interface {
	Observe(s Sample)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(s Sample)

func (f ObserverFunc) Observe(s Sample) { f(s) }
