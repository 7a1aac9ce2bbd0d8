package avalanche

// Aggregator holds the endpoints of one avalanche, ordered by spawn index.
type Aggregator struct {
	endpoints       []Endpoint
	electrons, ions int
	truncated       bool
}

// AvalancheSize returns the number of electrons, including the primary, and
// the number of ions created.
func (agg *Aggregator) AvalancheSize() (electrons, ions int) {
	return agg.electrons, agg.ions
}

// EndpointCount returns the number of recorded endpoints.
func (agg *Aggregator) EndpointCount() int { return len(agg.endpoints) }

// EndpointAt returns the endpoint of the track with spawn index i.
func (agg *Aggregator) EndpointAt(i int) Endpoint { return agg.endpoints[i] }

// Endpoints returns a copy of all endpoints.
func (agg *Aggregator) Endpoints() []Endpoint {
	return append([]Endpoint{}, agg.endpoints...)
}

// Truncated returns true if the avalanche was stopped early, either because
// it reached the electron cap or because it was cancelled. The endpoints
// recorded so far remain valid.
func (agg *Aggregator) Truncated() bool { return agg.truncated }

// StatusCount returns the number of endpoints with status s.
func (agg *Aggregator) StatusCount(s Status) int {
	n := 0
	for i := range agg.endpoints {
		if agg.endpoints[i].Status == s { n++ }
	}
	return n
}

func (agg *Aggregator) add(ep Endpoint) {
	agg.endpoints = append(agg.endpoints, ep)
	agg.electrons++
}
