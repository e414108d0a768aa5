package feed

// Readiness is the dashboard-wide signal derived from the store.
type Readiness struct {
	Ready      bool
	FatalError bool
	// Loading is true while a readiness-gating feed has never succeeded and none is fatal.
	Loading bool
	// FatalFeed names the feed that triggered FatalError.
	FatalFeed Name
}

// Aggregator derives Readiness from feed definitions.
type Aggregator struct {
	fatal    []Name
	required []Name
}

// NewAggregator records which feeds escalate errors and which gate readiness.
func NewAggregator(feeds []Feed) *Aggregator {
	a := &Aggregator{}
	for _, f := range feeds {
		if f.FatalOnError {
			a.fatal = append(a.fatal, f.Name)
		}
		if f.BlocksReadiness {
			a.required = append(a.required, f.Name)
		}
	}
	return a
}

// Compute reads the store and returns the current signal. Errors on feeds that
// are not fatal never revoke readiness once it has been reached.
func (a *Aggregator) Compute(store *Store) Readiness {
	var r Readiness
	for _, name := range a.fatal {
		if store.Get(name).Status == StatusError {
			r.FatalError = true
			r.FatalFeed = name
			break
		}
	}

	r.Ready = true
	for _, name := range a.required {
		if !store.Get(name).HasValue() {
			r.Ready = false
			break
		}
	}
	r.Loading = !r.Ready && !r.FatalError
	return r
}
