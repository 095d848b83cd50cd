package filmila

import (
	"fmt"
	"strings"
	"time"
)

// Role is the application-level role attached to a Profile.
// The set is closed; unknown values are normalized at the decoding boundary.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleFilmmaker Role = "FILMMAKER"
	RoleViewer    Role = "VIEWER"
)

// ParseRole normalizes a raw role string (case-insensitive) into a Role.
// Unknown or empty values map to RoleViewer and ok=false, so callers can
// log the normalization without failing the decode.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleFilmmaker:
		return RoleFilmmaker, true
	case RoleViewer:
		return RoleViewer, true
	default:
		return RoleViewer, false
	}
}

// Session is the identity issued by the hosted auth service for the current
// client context. At most one Session is live per session store.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Profile is the application-owned record extending a Session with role and
// display data. Profile.ID equals the Session's UserID.
type Profile struct {
	ID          string
	Email       string
	Role        Role
	DisplayName string
	CreatedAt   time.Time
}

// Equal reports whether two profiles carry the same values. Used by the
// session store to suppress duplicate subscriber notifications.
func (p *Profile) Equal(other *Profile) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.ID == other.ID &&
		p.Email == other.Email &&
		p.Role == other.Role &&
		p.DisplayName == other.DisplayName &&
		p.CreatedAt.Equal(other.CreatedAt)
}

// EventKind tags an AuthEvent. Kinds outside the known set are carried
// through untouched; consumers treat them as no-ops.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// AuthEvent is a single state change emitted by the auth service feed.
// It is transient: consumed exactly once by the event listener.
type AuthEvent struct {
	Kind    EventKind
	Session *Session
}

// FilmStatus is the moderation state of an uploaded film.
type FilmStatus string

const (
	FilmPending  FilmStatus = "PENDING"
	FilmApproved FilmStatus = "APPROVED"
	FilmRejected FilmStatus = "REJECTED"
)

// Film is a short film row owned by the hosted row storage.
type Film struct {
	ID          string
	FilmmakerID string
	Title       string
	Description string
	PriceCents  int64
	VideoURL    string
	Status      FilmStatus
	CreatedAt   time.Time
}

// CheckoutSession is a payment-processor checkout created for a film purchase.
type CheckoutSession struct {
	ID          string
	URL         string
	Status      string // "open", "complete", "expired"
	AmountCents int64
	FilmID      string
}

// Credentials are the inputs to password sign-in and sign-up.
type Credentials struct {
	Email    string
	Password string
}

// Validate performs the minimal client-side checks before a credential call
// leaves the SDK.
func (c Credentials) Validate() error {
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return fmt.Errorf("filmila: %w: email", ErrInvalidInput)
	}
	if len(c.Password) < 6 {
		return fmt.Errorf("filmila: %w: password must be at least 6 characters", ErrInvalidInput)
	}
	return nil
}

// ListOptions holds pagination parameters for row listings.
type ListOptions struct {
	Page     int
	PageSize int
}
