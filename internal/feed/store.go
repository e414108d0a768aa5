package feed

import (
	"fmt"
	"sync/atomic"
)

// Store holds the latest State per feed. The key set is fixed at construction,
// so lookups need no lock and each feed's state is swapped atomically.
type Store struct {
	states map[Name]*atomic.Pointer[State]
}

// NewStore creates a store with every known feed in the idle state.
func NewStore() *Store {
	s := &Store{states: make(map[Name]*atomic.Pointer[State], len(Names))}
	for _, name := range Names {
		p := new(atomic.Pointer[State])
		p.Store(&State{Status: StatusIdle})
		s.states[name] = p
	}
	return s
}

// Get returns the latest settled state of a feed. It never blocks.
func (s *Store) Get(name Name) State {
	p, ok := s.states[name]
	if !ok {
		return State{Status: StatusIdle}
	}
	return *p.Load()
}

// Set replaces the state of a feed.
func (s *Store) Set(name Name, state State) error {
	p, ok := s.states[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeed, name)
	}
	p.Store(&state)
	return nil
}

// Snapshot copies the state of every feed.
func (s *Store) Snapshot() map[Name]State {
	out := make(map[Name]State, len(s.states))
	for name, p := range s.states {
		out[name] = *p.Load()
	}
	return out
}
