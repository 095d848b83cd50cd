// Package hydrate asynchronously enriches a freshly set identity with its
// profile row, creating a default-role profile when none exists yet.
//
// A hydrator runs at most one hydration at a time: Hydrate while a prior
// call is outstanding is a no-op, so a burst of redundant auth events
// collapses to a single fetch. Failures never cross the package boundary;
// they end as a logged, terminal "authenticated with nil profile" state in
// the session store.
package hydrate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/metrics"
	"github.com/filmila/filmila-go/sessionstore"
)

// DefaultLookupTimeout bounds a single profile lookup or create call so the
// UI is never blocked indefinitely on a slow or absent network.
const DefaultLookupTimeout = 5 * time.Second

// Hydrator fetches or lazily creates the profile for the store's current
// identity.
type Hydrator struct {
	store    *sessionstore.Store
	profiles filmila.ProfileStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// Option configures the Hydrator.
type Option func(*Hydrator)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hydrator) { h.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hydrator) { h.metrics = m }
}

// WithLookupTimeout overrides the per-call bound.
func WithLookupTimeout(d time.Duration) Option {
	return func(h *Hydrator) { h.timeout = d }
}

// New creates a Hydrator writing into store via profiles.
func New(store *sessionstore.Store, profiles filmila.ProfileStore, opts ...Option) *Hydrator {
	h := &Hydrator{
		store:    store,
		profiles: profiles,
		logger:   slog.Default(),
		metrics:  metrics.New(false),
		timeout:  DefaultLookupTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Hydrate starts an asynchronous hydration for session, bound to the given
// store generation. If a hydration is already in flight the call is a no-op.
func (h *Hydrator) Hydrate(ctx context.Context, gen uint64, session *filmila.Session) {
	if session == nil {
		return
	}
	if !h.inFlight.CompareAndSwap(false, true) {
		h.metrics.RecordHydration("skipped", 0)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.inFlight.Store(false)
		h.run(ctx, gen, session)
	}()
}

// Wait blocks until any in-flight hydration reaches a terminal state.
func (h *Hydrator) Wait() {
	h.wg.Wait()
}

// run walks the hydration state machine: lookup, create-if-absent, merge.
// Every terminal path merges into the store (possibly nil) so the loading
// flag always clears.
func (h *Hydrator) run(ctx context.Context, gen uint64, session *filmila.Session) {
	start := time.Now()

	profile, err := h.lookup(ctx, session.UserID)
	switch {
	case err == nil && profile != nil:
		h.store.MergeProfile(gen, profile)
		h.metrics.RecordHydration("hydrated", time.Since(start).Seconds())
		return

	case err == nil:
		// Absent: create the default-role profile idempotently.
		created, createErr := h.create(ctx, session)
		if createErr != nil {
			h.logger.Warn("profile create failed; leaving profile empty",
				"user_id", session.UserID, "err", createErr)
			h.store.MergeProfile(gen, nil)
			h.metrics.RecordHydration("failed", time.Since(start).Seconds())
			return
		}
		h.store.MergeProfile(gen, created)
		h.metrics.RecordHydration("created", time.Since(start).Seconds())
		return

	default:
		h.logger.Warn("profile lookup failed; leaving profile empty",
			"user_id", session.UserID, "err", err)
		h.store.MergeProfile(gen, nil)
		h.metrics.RecordHydration("failed", time.Since(start).Seconds())
	}
}

// lookup returns (profile, nil) when found, (nil, nil) when absent, and
// (nil, err) on failure. A timed-out lookup counts as absent and falls
// through to the create path: InsertIfAbsent is idempotent (the backend
// ignores duplicates and hands back the winning row), so the only cost of
// guessing wrong is one more bounded call.
func (h *Hydrator) lookup(ctx context.Context, id string) (*filmila.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	p, err := h.profiles.FindByID(ctx, id)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, filmila.ErrNotFound) || errors.Is(err, context.DeadlineExceeded) {
		return nil, nil
	}
	return nil, err
}

func (h *Hydrator) create(ctx context.Context, session *filmila.Session) (*filmila.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	return h.profiles.InsertIfAbsent(ctx, &filmila.Profile{
		ID:        session.UserID,
		Email:     session.Email,
		Role:      filmila.RoleViewer,
		CreatedAt: time.Now().UTC(),
	})
}
