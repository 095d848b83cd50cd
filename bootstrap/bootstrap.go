// Package bootstrap establishes the initial session state at application
// start and keeps it current by consuming the auth service's state-change
// feed.
//
// The sequencer runs once: it asks the auth service for any persisted
// session, seeds the session store, and, no matter what happened, marks
// the store ready so the UI is never stuck in an indefinite loading state.
// The listener then owns the feed for the lifetime of the application.
package bootstrap

import (
	"context"
	"log/slog"
	"time"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/metrics"
	"github.com/filmila/filmila-go/sessionstore"
)

// DefaultBootstrapTimeout bounds the initial session fetch. When the auth
// collaborator does not answer in time, the client proceeds as "ready,
// unauthenticated".
const DefaultBootstrapTimeout = 10 * time.Second

// Hydrator starts an asynchronous profile hydration for a session bound to
// a store generation. Implemented by hydrate.Hydrator.
type Hydrator interface {
	Hydrate(ctx context.Context, gen uint64, session *filmila.Session)
}

// Sequencer performs the one-shot session bootstrap.
type Sequencer struct {
	auth     filmila.AuthService
	store    *sessionstore.Store
	hydrator Hydrator
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// Option configures the Sequencer.
type Option func(*Sequencer)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// WithTimeout overrides the bootstrap bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Sequencer) { s.timeout = d }
}

// NewSequencer creates a Sequencer for the given collaborators.
func NewSequencer(auth filmila.AuthService, store *sessionstore.Store, h Hydrator, opts ...Option) *Sequencer {
	s := &Sequencer{
		auth:     auth,
		store:    store,
		hydrator: h,
		logger:   slog.Default(),
		metrics:  metrics.New(false),
		timeout:  DefaultBootstrapTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run retrieves any existing session and seeds the store. It never returns
// an error: failures are logged and leave the store in its default
// unauthenticated state. The store is marked ready on every path.
func (s *Sequencer) Run(ctx context.Context) {
	defer s.store.MarkReady()

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.auth.CurrentSession(fetchCtx)
	if err != nil {
		s.logger.Warn("session bootstrap failed; starting unauthenticated", "err", err)
		s.metrics.RecordBootstrap("error")
		return
	}

	if session == nil {
		s.store.SetIdentity(nil)
		s.metrics.RecordBootstrap("no_session")
		return
	}

	gen := s.store.SetIdentity(session)
	s.hydrator.Hydrate(ctx, gen, session)
	s.metrics.RecordBootstrap("session")
}
