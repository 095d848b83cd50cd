// Package ginmw provides Gin HTTP middleware over the Filmila session
// lifecycle.
//
// Auth verifies bearer tokens locally and attaches the resulting session
// to the request. Guard translates access decisions into HTTP responses:
// renders pass through, redirects become 302s, and a pending profile
// hydration serves a retryable "loading" response instead of bouncing the
// caller off the page.
package ginmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/guard"
	"github.com/filmila/filmila-go/metrics"
	"github.com/filmila/filmila-go/sessionstore"
)

// Context keys for storing session data in gin.Context.
const (
	KeySession = "filmila_session"
	KeyUserID  = "filmila_user_id"
	KeyProfile = "filmila_profile"
)

// Default redirect targets used by Guard.
const (
	DefaultLoginPath     = "/login"
	DefaultHomePath      = "/"
	DefaultDashboardPath = "/dashboard"
)

// TokenVerifier validates an access token locally and returns the session
// it represents. Implemented by token.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*filmila.Session, error)
}

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// Auth returns Gin middleware that verifies bearer tokens via verifier.
// On success, the session is stored in the Gin context (retrievable via
// GetSession, GetUserID) and in the request context.
// Responds with 401 if the token is missing or invalid.
func Auth(verifier TokenVerifier, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{excludedPaths: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		tokenStr := extractBearerToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token verifier not configured"})
			return
		}

		session, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(KeySession, session)
		c.Set(KeyUserID, session.UserID)
		c.Request = c.Request.WithContext(filmila.WithSession(c.Request.Context(), session))

		c.Next()
	}
}

// GuardOption configures Guard middleware behavior.
type GuardOption func(*guardConfig)

type guardConfig struct {
	loginPath     string
	homePath      string
	dashboardPath string
	metrics       *metrics.Metrics
}

// WithLoginPath overrides the unauthenticated redirect target.
func WithLoginPath(p string) GuardOption {
	return func(cfg *guardConfig) { cfg.loginPath = p }
}

// WithHomePath overrides the role-mismatch redirect target.
func WithHomePath(p string) GuardOption {
	return func(cfg *guardConfig) { cfg.homePath = p }
}

// WithDashboardPath overrides the filmmaker dashboard redirect target.
func WithDashboardPath(p string) GuardOption {
	return func(cfg *guardConfig) { cfg.dashboardPath = p }
}

// WithMetrics wires guard decision instrumentation.
func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(cfg *guardConfig) { cfg.metrics = m }
}

// Guard returns Gin middleware gating a view on the session store's state.
// required is empty for views open to any authenticated caller.
//
// Decision mapping:
//
//	Render            pass through, profile attached to the context
//	RenderLoading     202 with Retry-After, role check pending hydration
//	RedirectLogin     302 to the login path
//	RedirectHome      302 to the home path
//	RedirectDashboard 302 to the dashboard path
func Guard(store *sessionstore.Store, required filmila.Role, opts ...GuardOption) gin.HandlerFunc {
	cfg := &guardConfig{
		loginPath:     DefaultLoginPath,
		homePath:      DefaultHomePath,
		dashboardPath: DefaultDashboardPath,
		metrics:       metrics.New(false),
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		state := store.Snapshot()
		decision := guard.Decide(guard.Input{
			Session:        state.Identity,
			Profile:        state.Profile,
			ProfileLoading: state.ProfileLoading,
			RequiredRole:   required,
			Path:           c.Request.URL.Path,
		})
		cfg.metrics.RecordGuardDecision(decision.String())

		switch decision {
		case guard.Render:
			if state.Profile != nil {
				c.Set(KeyProfile, state.Profile)
				c.Request = c.Request.WithContext(filmila.WithProfile(c.Request.Context(), state.Profile))
			}
			c.Next()

		case guard.RenderLoading:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"status": "loading"})

		case guard.RedirectLogin:
			c.Abort()
			c.Redirect(http.StatusFound, cfg.loginPath)

		case guard.RedirectHome:
			c.Abort()
			c.Redirect(http.StatusFound, cfg.homePath)

		case guard.RedirectDashboard:
			c.Abort()
			c.Redirect(http.StatusFound, cfg.dashboardPath)
		}
	}
}

// --- Context helpers ---

// GetSession returns the verified session from the Gin context.
func GetSession(c *gin.Context) *filmila.Session {
	v, _ := c.Get(KeySession)
	s, _ := v.(*filmila.Session)
	return s
}

// GetUserID returns the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(KeyUserID)
	s, _ := v.(string)
	return s
}

// GetProfile returns the hydrated profile from the Gin context.
func GetProfile(c *gin.Context) *filmila.Profile {
	v, _ := c.Get(KeyProfile)
	p, _ := v.(*filmila.Profile)
	return p
}

// --- internal helpers ---

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
