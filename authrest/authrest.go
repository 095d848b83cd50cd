// Package authrest implements filmila.AuthService against the hosted auth
// backend's REST API.
//
// Besides the credential calls, the service owns the auth-state change
// feed: its own mutating calls emit SIGNED_IN / SIGNED_OUT / USER_UPDATED,
// and a background loop renews the access token before expiry, emitting
// TOKEN_REFRESHED. Concurrent refreshes collapse through singleflight.
package authrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	filmila "github.com/filmila/filmila-go"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBuffer is how long before expiry the access token is renewed.
const DefaultRefreshBuffer = 60 * time.Second

// TokenVerifier validates a persisted access token locally.
// Implemented by token.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*filmila.Session, error)
}

// Service is the REST adapter for the hosted auth backend.
type Service struct {
	baseURL       string
	anonKey       string
	httpClient    *http.Client
	logger        *slog.Logger
	verifier      TokenVerifier
	refreshBuffer time.Duration

	mu      sync.RWMutex
	session *filmila.Session

	subMu     sync.Mutex
	nextSubID int
	subs      map[int]func(filmila.AuthEvent)

	sf singleflight.Group

	refreshMu    sync.Mutex
	refreshStop  chan struct{}
	refreshDone  chan struct{}
}

// compile-time check
var _ filmila.AuthService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithVerifier enables local validation of restored tokens.
func WithVerifier(v TokenVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithRefreshBuffer sets how long before expiry the token is renewed.
func WithRefreshBuffer(d time.Duration) Option {
	return func(s *Service) { s.refreshBuffer = d }
}

// New creates a Service for the auth endpoint at baseURL (e.g.
// "https://api.filmila.app/auth/v1"). anonKey is sent with every request.
func New(baseURL, anonKey string, opts ...Option) *Service {
	s := &Service{
		baseURL:       baseURL,
		anonKey:       anonKey,
		httpClient:    &http.Client{Timeout: filmila.DefaultRequestTimeout},
		logger:        slog.Default(),
		refreshBuffer: DefaultRefreshBuffer,
		subs:          make(map[int]func(filmila.AuthEvent)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- filmila.AuthService ---

// CurrentSession returns the session held by this client context, or nil
// when unauthenticated. It performs no network call; Restore seeds the
// session from persisted tokens.
func (s *Service) CurrentSession(ctx context.Context) (*filmila.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	out := *s.session
	return &out, nil
}

// OnStateChange registers a callback for auth-state events. Events are
// delivered one at a time, in emission order.
func (s *Service) OnStateChange(fn func(filmila.AuthEvent)) filmila.Unsubscribe {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// SignIn exchanges credentials for a session and emits SIGNED_IN.
func (s *Service) SignIn(ctx context.Context, creds filmila.Credentials) (*filmila.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	session, err := s.tokenCall(ctx, s.baseURL+"/token?grant_type=password", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return nil, err
	}

	s.adopt(session)
	s.emit(filmila.AuthEvent{Kind: filmila.EventSignedIn, Session: session})
	return session, nil
}

// SignUp registers a new account and emits SIGNED_IN on success.
func (s *Service) SignUp(ctx context.Context, creds filmila.Credentials) (*filmila.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	session, err := s.tokenCall(ctx, s.baseURL+"/signup", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return nil, err
	}

	s.adopt(session)
	s.emit(filmila.AuthEvent{Kind: filmila.EventSignedIn, Session: session})
	return session, nil
}

// SignOut revokes the current session on the backend, clears local state,
// and emits SIGNED_OUT. Local state clears even when the revoke call fails:
// the client must not stay signed in on a flaky network.
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("filmila/authrest: create request: %w", err)
	}
	s.setHeaders(req, session.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("logout call failed; clearing local session anyway", "err", err)
	} else {
		_ = resp.Body.Close()
	}

	s.adopt(nil)
	s.emit(filmila.AuthEvent{Kind: filmila.EventSignedOut})
	return nil
}

// --- extras beyond the interface ---

// Restore seeds the session from tokens persisted by a previous run and
// emits INITIAL_SESSION. When a verifier is configured the access token is
// validated locally first; an invalid or expired token falls back to a
// refresh-token exchange.
func (s *Service) Restore(ctx context.Context, accessToken, refreshToken string) (*filmila.Session, error) {
	if accessToken == "" && refreshToken == "" {
		return nil, fmt.Errorf("filmila/authrest: %w: no tokens to restore", filmila.ErrInvalidInput)
	}

	var session *filmila.Session
	if s.verifier != nil && accessToken != "" {
		verified, err := s.verifier.Verify(ctx, accessToken)
		if err == nil {
			verified.RefreshToken = refreshToken
			session = verified
		} else {
			s.logger.Debug("persisted access token rejected; trying refresh", "err", err)
		}
	}

	if session == nil {
		refreshed, err := s.refreshCall(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		session = refreshed
	}

	s.adopt(session)
	s.emit(filmila.AuthEvent{Kind: filmila.EventInitialSession, Session: session})
	return session, nil
}

// UpdateUser changes the account email and/or password and emits
// USER_UPDATED with the current session.
func (s *Service) UpdateUser(ctx context.Context, email, password string) error {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return fmt.Errorf("filmila/authrest: %w: not signed in", filmila.ErrInvalidInput)
	}

	payload := map[string]string{}
	if email != "" {
		payload["email"] = email
	}
	if password != "" {
		payload["password"] = password
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/user", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("filmila/authrest: create request: %w", err)
	}
	s.setHeaders(req, session.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("filmila/authrest: update user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("filmila/authrest: update user returned status %d", resp.StatusCode)
	}

	updated := *session
	if email != "" {
		updated.Email = email
	}
	s.adopt(&updated)
	s.emit(filmila.AuthEvent{Kind: filmila.EventUserUpdated, Session: &updated})
	return nil
}

// Close stops the background refresh loop.
func (s *Service) Close() error {
	s.stopRefreshLoop()
	return nil
}

// --- internals ---

// sessionResponse is the backend's token payload shape.
type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r *sessionResponse) session() *filmila.Session {
	now := time.Now()
	return &filmila.Session{
		UserID:       r.User.ID,
		Email:        r.User.Email,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}

// tokenCall posts a JSON payload to a session-issuing endpoint.
func (s *Service) tokenCall(ctx context.Context, url string, payload map[string]string) (*filmila.Session, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("filmila/authrest: create request: %w", err)
	}
	s.setHeaders(req, "")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filmila/authrest: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("filmila/authrest: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("filmila/authrest: %w", filmila.ErrInvalidCredentials)
	default:
		return nil, fmt.Errorf("filmila/authrest: auth endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var sr sessionResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("filmila/authrest: decode response: %w", err)
	}
	if sr.AccessToken == "" {
		return nil, fmt.Errorf("filmila/authrest: empty access_token in response")
	}
	return sr.session(), nil
}

// refreshCall exchanges a refresh token for a new session. Concurrent calls
// collapse to a single request.
func (s *Service) refreshCall(ctx context.Context, refreshToken string) (*filmila.Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("filmila/authrest: %w: no refresh token", filmila.ErrInvalidInput)
	}

	result, err, _ := s.sf.Do("refresh", func() (interface{}, error) {
		return s.tokenCall(ctx, s.baseURL+"/token?grant_type=refresh_token", map[string]string{
			"refresh_token": refreshToken,
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(*filmila.Session), nil
}

// adopt replaces the held session and restarts the refresh loop for it.
func (s *Service) adopt(session *filmila.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.stopRefreshLoop()
	if session != nil && session.RefreshToken != "" && !session.ExpiresAt.IsZero() {
		s.startRefreshLoop(session.ExpiresAt)
	}
}

func (s *Service) startRefreshLoop(expiresAt time.Time) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.refreshStop = stop
	s.refreshDone = done

	go func() {
		defer close(done)
		for {
			wait := time.Until(expiresAt) - s.refreshBuffer
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}

			s.mu.RLock()
			session := s.session
			s.mu.RUnlock()
			if session == nil {
				return
			}

			refreshed, err := s.refreshCall(context.Background(), session.RefreshToken)
			if err != nil {
				s.logger.Warn("token refresh failed; retrying", "err", err)
				expiresAt = time.Now().Add(30 * time.Second)
				continue
			}

			s.mu.Lock()
			s.session = refreshed
			s.mu.Unlock()
			s.emit(filmila.AuthEvent{Kind: filmila.EventTokenRefreshed, Session: refreshed})
			expiresAt = refreshed.ExpiresAt
		}
	}()
}

func (s *Service) stopRefreshLoop() {
	s.refreshMu.Lock()
	stop, done := s.refreshStop, s.refreshDone
	s.refreshStop, s.refreshDone = nil, nil
	s.refreshMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// emit delivers an event to every subscriber, one at a time.
func (s *Service) emit(ev filmila.AuthEvent) {
	s.subMu.Lock()
	subs := make([]func(filmila.AuthEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Service) setHeaders(req *http.Request, bearer string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.anonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
}
