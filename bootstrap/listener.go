package bootstrap

import (
	"context"
	"log/slog"
	"sync"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/metrics"
	"github.com/filmila/filmila-go/sessionstore"
)

// Listener subscribes to the auth service's state-change feed and re-derives
// session store state on each event. Close releases the subscription.
type Listener struct {
	store    *sessionstore.Store
	hydrator Hydrator
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	lastKind filmila.EventKind
	hasLast  bool

	unsubscribe filmila.Unsubscribe
	closeOnce   sync.Once
}

// ListenerOption configures the Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets a structured logger.
func WithListenerLogger(l *slog.Logger) ListenerOption {
	return func(ln *Listener) { ln.logger = l }
}

// WithListenerMetrics sets the metrics sink.
func WithListenerMetrics(m *metrics.Metrics) ListenerOption {
	return func(ln *Listener) { ln.metrics = m }
}

// Listen subscribes to auth's state-change feed for the lifetime of the
// returned Listener. The caller owns the Listener and must Close it on
// teardown.
func Listen(auth filmila.AuthService, store *sessionstore.Store, h Hydrator, opts ...ListenerOption) *Listener {
	ln := &Listener{
		store:    store,
		hydrator: h,
		logger:   slog.Default(),
		metrics:  metrics.New(false),
	}
	for _, o := range opts {
		o(ln)
	}
	ln.unsubscribe = auth.OnStateChange(func(ev filmila.AuthEvent) {
		ln.HandleEvent(context.Background(), ev)
	})
	return ln
}

// Close unsubscribes from the feed. Safe to call more than once.
func (ln *Listener) Close() error {
	ln.closeOnce.Do(func() {
		if ln.unsubscribe != nil {
			ln.unsubscribe()
		}
	})
	return nil
}

// HandleEvent processes one auth event. Exported so tests (and alternative
// feed transports) can drive the listener directly.
//
// Events repeating the immediately preceding kind are ignored: chatty
// upstream feeds re-emit the same transition, and each repeat would
// otherwise trigger a redundant profile refetch.
func (ln *Listener) HandleEvent(ctx context.Context, ev filmila.AuthEvent) {
	if ln.isDuplicate(ev.Kind) {
		ln.metrics.RecordAuthEvent(string(ev.Kind), false)
		return
	}

	switch ev.Kind {
	case filmila.EventSignedOut:
		ln.store.SetIdentity(nil)
		ln.metrics.RecordAuthEvent(string(ev.Kind), true)

	case filmila.EventSignedIn, filmila.EventTokenRefreshed,
		filmila.EventUserUpdated, filmila.EventInitialSession:
		if ev.Session == nil {
			ln.logger.Debug("auth event without session payload ignored", "kind", ev.Kind)
			ln.metrics.RecordAuthEvent(string(ev.Kind), false)
			return
		}

		prev := ln.store.Snapshot().Profile
		gen := ln.store.SetIdentity(ev.Session)

		// A token refresh for an already-hydrated profile needs no refetch;
		// the previous profile is carried over to the new generation.
		if ev.Kind == filmila.EventSignedIn || prev == nil {
			ln.hydrator.Hydrate(ctx, gen, ev.Session)
		} else {
			ln.store.MergeProfile(gen, prev)
		}
		ln.metrics.RecordAuthEvent(string(ev.Kind), true)

	default:
		// Unknown kinds are forward-compatible no-ops.
		ln.logger.Debug("unhandled auth event kind", "kind", ev.Kind)
		ln.metrics.RecordAuthEvent(string(ev.Kind), false)
	}
}

// isDuplicate records ev as the last processed kind and reports whether it
// repeats the previous one.
func (ln *Listener) isDuplicate(kind filmila.EventKind) bool {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	dup := ln.hasLast && ln.lastKind == kind
	ln.lastKind = kind
	ln.hasLast = true
	return dup
}
