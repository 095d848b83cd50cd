package films

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/metrics"
)

const (
	feedName = "films"

	// DefaultPollInterval is how often the watcher resyncs the approved
	// list while the push feed is down.
	DefaultPollInterval = 15 * time.Second

	maxReconnectBackoff = 30 * time.Second
)

// Watcher follows the film change feed. While the push stream is
// connected it is the single source of truth and no polling happens;
// fixed-interval polling runs only between reconnect attempts after the
// stream drops.
type Watcher struct {
	feedURL      string
	anonKey      string
	store        filmila.FilmStore
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration

	// OnChange receives a single changed film pushed by the feed.
	// OnResync receives a full approved-list snapshot fetched while the
	// feed is down, and again once after every reconnect to cover events
	// missed during the outage.
	onChange func(*filmila.Film)
	onResync func([]*filmila.Film)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherHTTPClient sets a custom HTTP client. The client must not
// enforce an overall request timeout: the stream stays open indefinitely.
func WithWatcherHTTPClient(c *http.Client) WatcherOption {
	return func(w *Watcher) { w.httpClient = c }
}

// WithWatcherLogger sets a structured logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithWatcherMetrics wires watcher instrumentation.
func WithWatcherMetrics(m *metrics.Metrics) WatcherOption {
	return func(w *Watcher) { w.metrics = m }
}

// WithPollInterval overrides the fallback poll cadence.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.pollInterval = d }
}

// NewWatcher builds a Watcher over the feed at feedURL, using store for
// fallback resyncs. onChange and onResync may be nil when the caller only
// cares about one delivery path.
func NewWatcher(feedURL, anonKey string, store filmila.FilmStore, onChange func(*filmila.Film), onResync func([]*filmila.Film), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		feedURL:      feedURL,
		anonKey:      anonKey,
		store:        store,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		metrics:      metrics.New(false),
		pollInterval: DefaultPollInterval,
		onChange:     onChange,
		onResync:     onResync,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Watch blocks until ctx is cancelled, maintaining the feed connection
// and running the poll fallback across outages.
func (w *Watcher) Watch(ctx context.Context) {
	backoff := time.Second
	for {
		err := w.stream(ctx)
		w.metrics.SetFeedConnected(feedName, false)
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("film feed disconnected, polling until reconnect",
			"error", err, "retry_in", backoff)

		if !w.pollUntil(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

// stream opens the push feed and dispatches events until it fails or ctx
// is cancelled. A nil error is never returned: a healthy stream does not
// end.
func (w *Watcher) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.feedURL, nil)
	if err != nil {
		return fmt.Errorf("filmila/films: create feed request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("apikey", w.anonKey)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("filmila/films: feed connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("filmila/films: feed endpoint returned %d", resp.StatusCode)
	}

	w.metrics.SetFeedConnected(feedName, true)
	w.logger.Info("film feed connected", "url", w.feedURL)
	// One resync after (re)connect covers anything missed while offline.
	w.resync(ctx)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue // heartbeats, comments, blank separators
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var row filmRow
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			w.logger.Warn("film feed sent undecodable event", "error", err)
			continue
		}
		if w.onChange != nil {
			w.onChange(row.film())
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("filmila/films: feed read: %w", err)
	}
	return fmt.Errorf("filmila/films: feed closed by server")
}

// pollUntil resyncs on the poll interval for at most d, then returns true
// so the caller can attempt a reconnect. Returns false on cancellation.
func (w *Watcher) pollUntil(ctx context.Context, d time.Duration) bool {
	w.resync(ctx)

	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return true
		case <-ticker.C:
			w.resync(ctx)
		}
	}
}

func (w *Watcher) resync(ctx context.Context) {
	if w.onResync == nil || w.store == nil {
		return
	}
	films, _, err := w.store.List(ctx, filmila.ListOptions{Page: 1, PageSize: 100})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("film resync failed", "error", err)
		}
		return
	}
	w.onResync(films)
}
