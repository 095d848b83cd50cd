// Package sessionstore holds the client's authenticated identity and its
// loading/ready flags: the single source of truth consumed by every
// protected view.
//
// The store is the only shared mutable resource in the session lifecycle.
// It is mutated by the bootstrap sequencer, the auth event listener, the
// profile hydrator, and explicit sign-in/sign-out paths; everything else
// reads through Snapshot or Subscribe.
package sessionstore

import (
	"sync"

	filmila "github.com/filmila/filmila-go"
)

// State is an immutable snapshot of the store.
type State struct {
	// Identity is the live session, or nil when unauthenticated.
	Identity *filmila.Session

	// Profile is the hydrated profile for Identity, nil until hydration
	// completes or when hydration terminally failed.
	Profile *filmila.Profile

	// ProfileLoading is true from the moment an identity is set until its
	// hydration reaches a terminal state.
	ProfileLoading bool

	// Ready flips true once the initial bootstrap decision has been made,
	// regardless of whether profile hydration has completed.
	Ready bool

	// Generation increases every time Identity is replaced. Profile merges
	// carry the generation that triggered the fetch so stale results for a
	// since-replaced identity are discarded.
	Generation uint64
}

// Authenticated reports whether a session is live.
func (s State) Authenticated() bool { return s.Identity != nil }

// Store is a subscribable container for session state.
// Methods never return errors; it is a pure state holder.
type Store struct {
	mu    sync.Mutex
	state State

	nextSubID int
	subs      map[int]func(State)
}

// New creates an empty, not-yet-ready store.
func New() *Store {
	return &Store{subs: make(map[int]func(State))}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a callback invoked after every state change, with the
// new state. The returned cancel func removes the subscription; calling it
// more than once is safe.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetIdentity replaces the live session and bumps the generation.
// A nil session clears the profile and marks the store ready (sign-out is a
// complete bootstrap decision). A non-nil session resets the profile to nil
// and flags it as loading until a merge arrives.
// It returns the new generation for the hydrator to carry.
func (s *Store) SetIdentity(session *filmila.Session) uint64 {
	s.mu.Lock()
	s.state.Identity = session
	s.state.Generation++
	s.state.Profile = nil
	if session == nil {
		s.state.ProfileLoading = false
		s.state.Ready = true
	} else {
		s.state.ProfileLoading = true
	}
	gen := s.state.Generation
	st := s.state
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, st)
	return gen
}

// MergeProfile attaches a hydration result to the identity generation that
// triggered it. Results for a replaced identity are dropped. A nil profile
// records a terminal hydration failure: loading stops, profile stays nil.
// Merging a value equal to the current profile changes nothing and fires no
// notification.
func (s *Store) MergeProfile(gen uint64, p *filmila.Profile) {
	s.mu.Lock()
	if gen != s.state.Generation {
		s.mu.Unlock()
		return
	}
	if !s.state.ProfileLoading && s.state.Profile.Equal(p) {
		s.mu.Unlock()
		return
	}
	s.state.Profile = p
	s.state.ProfileLoading = false
	st := s.state
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, st)
}

// MarkReady flips Ready once. Idempotent; repeated calls fire no
// notification.
func (s *Store) MarkReady() {
	s.mu.Lock()
	if s.state.Ready {
		s.mu.Unlock()
		return
	}
	s.state.Ready = true
	st := s.state
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, st)
}

// snapshotSubs copies the subscriber list so callbacks run outside the lock.
// Callers must hold mu.
func (s *Store) snapshotSubs() []func(State) {
	out := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}
