package authrest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/authrest"
	"github.com/stretchr/testify/require"
)

const anonKey = "anon-key-1"

type authBackend struct {
	mu            sync.Mutex
	refreshGrants int
	logoutCalls   int
	failPassword  bool
}

func (b *authBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	writeSession := func(w http.ResponseWriter, userID, email string, expiresIn int) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-" + userID,
			"refresh_token": "rt-" + userID,
			"expires_in":    expiresIn,
			"user":          map[string]string{"id": userID, "email": email},
		})
	}

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, anonKey, r.Header.Get("apikey"))

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if b.failPassword {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			var creds map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			writeSession(w, "user-1", creds["email"], 3600)
		case "refresh_token":
			b.mu.Lock()
			b.refreshGrants++
			b.mu.Unlock()
			writeSession(w, "user-1", "viewer@example.com", 3600)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		writeSession(w, "user-new", "new@example.com", 3600)
	})

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.logoutCalls++
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// eventSink collects emitted auth events.
type eventSink struct {
	mu     sync.Mutex
	events []filmila.AuthEvent
}

func (e *eventSink) record(ev filmila.AuthEvent) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventSink) kinds() []filmila.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]filmila.EventKind, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Kind
	}
	return out
}

func newService(t *testing.T, backend *authBackend, opts ...authrest.Option) (*authrest.Service, *eventSink) {
	t.Helper()
	server := httptest.NewServer(backend.handler(t))
	t.Cleanup(server.Close)

	svc := authrest.New(server.URL, anonKey, opts...)
	t.Cleanup(func() { _ = svc.Close() })

	sink := &eventSink{}
	svc.OnStateChange(sink.record)
	return svc, sink
}

func TestSignIn_IssuesSessionAndEmitsSignedIn(t *testing.T) {
	svc, sink := newService(t, &authBackend{})

	session, err := svc.SignIn(context.Background(), filmila.Credentials{
		Email:    "viewer@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", session.UserID)
	require.Equal(t, "viewer@example.com", session.Email)
	require.NotEmpty(t, session.AccessToken)

	require.Equal(t, []filmila.EventKind{filmila.EventSignedIn}, sink.kinds())

	current, err := svc.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.UserID, current.UserID)
}

func TestSignIn_BadCredentials(t *testing.T) {
	svc, sink := newService(t, &authBackend{failPassword: true})

	_, err := svc.SignIn(context.Background(), filmila.Credentials{
		Email:    "viewer@example.com",
		Password: "wrong-pass",
	})
	require.ErrorIs(t, err, filmila.ErrInvalidCredentials)
	require.Empty(t, sink.kinds(), "failed sign-in must emit nothing")
}

func TestSignIn_RejectsInvalidInputLocally(t *testing.T) {
	svc, _ := newService(t, &authBackend{})

	_, err := svc.SignIn(context.Background(), filmila.Credentials{Email: "not-an-email", Password: "secret123"})
	require.ErrorIs(t, err, filmila.ErrInvalidInput)

	_, err = svc.SignIn(context.Background(), filmila.Credentials{Email: "a@b.com", Password: "short"})
	require.ErrorIs(t, err, filmila.ErrInvalidInput)
}

func TestSignUp_EmitsSignedIn(t *testing.T) {
	svc, sink := newService(t, &authBackend{})

	session, err := svc.SignUp(context.Background(), filmila.Credentials{
		Email:    "new@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.Equal(t, "user-new", session.UserID)
	require.Equal(t, []filmila.EventKind{filmila.EventSignedIn}, sink.kinds())
}

func TestSignOut_ClearsSessionAndEmits(t *testing.T) {
	backend := &authBackend{}
	svc, sink := newService(t, backend)

	_, err := svc.SignIn(context.Background(), filmila.Credentials{Email: "v@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(context.Background()))

	current, err := svc.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)
	require.Equal(t, []filmila.EventKind{filmila.EventSignedIn, filmila.EventSignedOut}, sink.kinds())
	require.Equal(t, 1, backend.logoutCalls)
}

func TestSignOut_WithoutSessionIsNoop(t *testing.T) {
	svc, sink := newService(t, &authBackend{})

	require.NoError(t, svc.SignOut(context.Background()))
	require.Empty(t, sink.kinds())
}

// stubVerifier accepts or rejects every token.
type stubVerifier struct {
	session *filmila.Session
	err     error
}

func (s *stubVerifier) Verify(_ context.Context, tok string) (*filmila.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.session
	out.AccessToken = tok
	return &out, nil
}

func TestRestore_ValidTokenEmitsInitialSession(t *testing.T) {
	verifier := &stubVerifier{session: &filmila.Session{UserID: "user-1", Email: "v@example.com"}}
	svc, sink := newService(t, &authBackend{}, authrest.WithVerifier(verifier))

	session, err := svc.Restore(context.Background(), "persisted-token", "persisted-refresh")
	require.NoError(t, err)
	require.Equal(t, "user-1", session.UserID)
	require.Equal(t, "persisted-refresh", session.RefreshToken)
	require.Equal(t, []filmila.EventKind{filmila.EventInitialSession}, sink.kinds())
}

func TestRestore_RejectedTokenFallsBackToRefreshGrant(t *testing.T) {
	backend := &authBackend{}
	verifier := &stubVerifier{err: fmt.Errorf("token expired")}
	svc, sink := newService(t, backend, authrest.WithVerifier(verifier))

	session, err := svc.Restore(context.Background(), "stale-token", "rt-user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", session.UserID)
	require.Equal(t, 1, backend.refreshGrants)
	require.Equal(t, []filmila.EventKind{filmila.EventInitialSession}, sink.kinds())
}

func TestRestore_NothingToRestore(t *testing.T) {
	svc, _ := newService(t, &authBackend{})

	_, err := svc.Restore(context.Background(), "", "")
	require.ErrorIs(t, err, filmila.ErrInvalidInput)
}

func TestRefreshLoop_EmitsTokenRefreshed(t *testing.T) {
	backend := &authBackend{}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	svc := authrest.New(server.URL, anonKey, authrest.WithRefreshBuffer(3599*time.Second))
	defer svc.Close()

	refreshed := make(chan filmila.AuthEvent, 4)
	svc.OnStateChange(func(ev filmila.AuthEvent) {
		if ev.Kind == filmila.EventTokenRefreshed {
			select {
			case refreshed <- ev:
			default:
			}
		}
	})

	// expires_in=3600 with a 3599s buffer: the loop renews almost immediately.
	_, err := svc.SignIn(context.Background(), filmila.Credentials{Email: "v@example.com", Password: "secret123"})
	require.NoError(t, err)

	select {
	case ev := <-refreshed:
		require.NotNil(t, ev.Session)
		require.Equal(t, "user-1", ev.Session.UserID)
	case <-time.After(5 * time.Second):
		t.Fatal("no TOKEN_REFRESHED event within the deadline")
	}
}

func TestOnStateChange_UnsubscribeStopsDelivery(t *testing.T) {
	svc, _ := newService(t, &authBackend{})

	var calls int
	var mu sync.Mutex
	unsub := svc.OnStateChange(func(filmila.AuthEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsub()

	_, err := svc.SignIn(context.Background(), filmila.Credentials{Email: "v@example.com", Password: "secret123"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls)
}
