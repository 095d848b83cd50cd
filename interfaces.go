package filmila

import (
	"context"
	"io"
)

// Unsubscribe releases an auth-state feed subscription. Safe to call more
// than once.
type Unsubscribe func()

// AuthService is the contract with the hosted authentication backend.
// Implementations: authrest/ (REST), fake/ (testing).
type AuthService interface {
	// CurrentSession returns the session persisted in this client context,
	// or nil when unauthenticated. Fails on network or decode errors.
	CurrentSession(ctx context.Context) (*Session, error)

	// OnStateChange registers a callback for auth-state events for the
	// lifetime of the subscription. Events are delivered one at a time.
	OnStateChange(fn func(AuthEvent)) Unsubscribe

	// SignIn exchanges credentials for a session and emits SIGNED_IN.
	SignIn(ctx context.Context, creds Credentials) (*Session, error)

	// SignUp registers a new account and emits SIGNED_IN on success.
	SignUp(ctx context.Context, creds Credentials) (*Session, error)

	// SignOut revokes the current session and emits SIGNED_OUT.
	SignOut(ctx context.Context) error
}

// ProfileStore is the contract with the hosted row storage for profiles.
type ProfileStore interface {
	// FindByID returns the profile for a user id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Profile, error)

	// InsertIfAbsent writes a profile unless one already exists for its id,
	// returning the winning row either way. Idempotent.
	InsertIfAbsent(ctx context.Context, p *Profile) (*Profile, error)
}

// FilmStore is the contract with the hosted row storage for films.
type FilmStore interface {
	// List returns approved films with pagination.
	List(ctx context.Context, opts ListOptions) ([]*Film, int, error)

	// Get returns a film by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Film, error)

	// Insert creates a film row in PENDING status.
	Insert(ctx context.Context, f *Film) (*Film, error)

	// UpdateStatus moves a film through moderation. Returns ErrConflict when
	// the row changed underneath the caller.
	UpdateStatus(ctx context.Context, id string, status FilmStatus) error
}

// ObjectStore is the contract with the hosted object storage.
type ObjectStore interface {
	// PutObject uploads bytes under key and returns the public URL.
	PutObject(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// PaymentService is the contract with the payment processor's checkout flow.
type PaymentService interface {
	// CreateCheckoutSession opens a checkout for a film purchase.
	CreateCheckoutSession(ctx context.Context, amountCents int64, filmID, successURL, cancelURL string) (*CheckoutSession, error)

	// RetrieveSession returns the current status of a checkout session.
	RetrieveSession(ctx context.Context, id string) (*CheckoutSession, error)
}
