// Package filmila provides a framework-agnostic Go SDK for the Filmila
// platform, a marketplace where independent filmmakers publish short films
// and viewers browse, purchase, and rate them.
//
// The platform's state lives in hosted services: a Postgres-backed
// auth/row-storage/realtime backend, an object store, and a payment
// processor. This SDK defines interfaces for those collaborators and owns
// the one piece of client-side behavior with real state: the session
// lifecycle (bootstrap, auth-event processing, profile hydration, and
// role-gated access decisions). Concrete implementations are injected via
// Option functions, keeping the SDK independent of any specific backend.
//
// Example usage with the REST adapters:
//
//	cfg, err := filmila.ConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := filmila.NewClient(cfg,
//	    filmila.WithAuthService(auth),
//	    filmila.WithProfileStore(profiles),
//	)
package filmila

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Client is the main entry point for Filmila operations.
// Collaborator implementations are injected via Option functions.
type Client struct {
	config   Config
	logger   *slog.Logger
	auth     AuthService
	profiles ProfileStore
	films    FilmStore
	objects  ObjectStore
	payments PaymentService
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAuthService sets the hosted auth implementation.
func WithAuthService(a AuthService) Option {
	return func(c *Client) { c.auth = a }
}

// WithProfileStore sets the profile row-storage implementation.
func WithProfileStore(p ProfileStore) Option {
	return func(c *Client) { c.profiles = p }
}

// WithFilmStore sets the film row-storage implementation.
func WithFilmStore(f FilmStore) Option {
	return func(c *Client) { c.films = f }
}

// WithObjectStore sets the object storage implementation.
func WithObjectStore(o ObjectStore) Option {
	return func(c *Client) { c.objects = o }
}

// WithPaymentService sets the payment processor implementation.
func WithPaymentService(p PaymentService) Option {
	return func(c *Client) { c.payments = p }
}

// NewClient creates a new Filmila client with the given configuration and
// options. Configuration problems fail here, at startup, never later.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &Client{config: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the configured structured logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Auth returns the auth service, or nil if not configured.
func (c *Client) Auth() AuthService { return c.auth }

// Profiles returns the profile store, or nil if not configured.
func (c *Client) Profiles() ProfileStore { return c.profiles }

// Films returns the film store, or nil if not configured.
func (c *Client) Films() FilmStore { return c.films }

// Objects returns the object store, or nil if not configured.
func (c *Client) Objects() ObjectStore { return c.objects }

// Payments returns the payment service, or nil if not configured.
func (c *Client) Payments() PaymentService { return c.payments }

// HealthCheck verifies the client is usable: at least one collaborator must
// be wired. It does not touch the network.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.auth == nil && c.profiles == nil && c.films == nil &&
		c.objects == nil && c.payments == nil {
		return fmt.Errorf("filmila: no services configured, at least one collaborator is required")
	}
	return nil
}

// Close releases all resources held by the client.
// Any injected collaborator that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.auth, c.profiles, c.films, c.objects, c.payments,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
