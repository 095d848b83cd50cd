// Package audit provides structured audit logging for account, moderation
// and purchase activity.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	filmila "github.com/filmila/filmila-go"
)

// Actions recorded by the client.
const (
	ActionSignIn     = "sign_in"
	ActionSignUp     = "sign_up"
	ActionSignOut    = "sign_out"
	ActionUpload     = "film_upload"
	ActionModeration = "film_moderation"
	ActionCheckout   = "checkout"
)

// Results of an audited action.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// Event records a single audited action.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Action    string    `json:"action"`
	FilmID    string    `json:"film_id,omitempty"`
	Result    string    `json:"result"`
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers from a buffered queue,
// so hot paths never wait on a slow sink.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	wg       sync.WaitGroup
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithSlogHandler adds a handler that forwards events to a structured
// logger at info level.
func WithSlogHandler(l *slog.Logger) Option {
	return func(lg *Logger) {
		lg.AddHandler(func(e Event) {
			l.Info("audit",
				"action", e.Action,
				"result", e.Result,
				"actor_id", e.ActorID,
				"film_id", e.FilmID,
				"request_id", e.RequestID,
				"error", e.Error,
			)
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		l.AddHandler(h)
	}
}

// New creates an audit logger with buffered async emission.
// bufferSize is the event queue depth (default 1000).
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	logger := &Logger{
		handlers: make([]Handler, 0),
		queue:    make(chan Event, bufferSize),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(logger)
	}

	logger.wg.Add(1)
	go logger.process()

	return logger
}

// AddHandler adds a handler to receive audit events.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an audit event asynchronously.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.queue <- event:
	case <-l.done:
		// Logger is shutting down, event is dropped
	}
}

// Record builds an event from the context's session and request id and
// emits it. err may be nil.
func (l *Logger) Record(ctx context.Context, action, filmID, result string, err error) {
	e := Event{
		Action:    action,
		FilmID:    filmID,
		Result:    result,
		RequestID: filmila.RequestIDFromContext(ctx),
	}
	if s := filmila.SessionFromContext(ctx); s != nil {
		e.ActorID = s.UserID
	}
	if err != nil {
		e.Error = err.Error()
	}
	l.Log(e)
}

// process handles events from the queue.
func (l *Logger) process() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.queue:
			for _, h := range l.handlers {
				h(event)
			}
		case <-l.done:
			// Drain remaining events
			for {
				select {
				case event := <-l.queue:
					for _, h := range l.handlers {
						h(event)
					}
				default:
					return
				}
			}
		}
	}
}

// Close flushes pending events and stops the logger.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return nil
}

// FromContext retrieves the audit logger from context.
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKeyLogger).(*Logger)
	if !ok {
		return nil
	}
	return logger
}

// WithContext stores the audit logger in context.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}

type contextKey string

const contextKeyLogger contextKey = "audit.logger"
