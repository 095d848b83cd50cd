// Package fake provides in-memory implementations of all filmila
// interfaces for testing.
//
// Use fake.NewClient() in unit tests to avoid network calls and external
// dependencies. The fake auth service additionally exposes Emit so tests
// can simulate backend-originated auth events.
package fake

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	filmila "github.com/filmila/filmila-go"
)

// Option configures the fake client.
type Option func(*state)

type state struct {
	mu       sync.RWMutex
	accounts map[string]*account         // email → account
	profiles map[string]*filmila.Profile // userID → profile
	films    map[string]*filmila.Film    // filmID → film
	objects  map[string][]byte           // key → bytes
	sessions map[string]*filmila.CheckoutSession
	nextID   int
}

type account struct {
	userID   string
	password string
}

// WithAccount seeds a sign-in-able account.
func WithAccount(userID, email, password string) Option {
	return func(s *state) {
		s.accounts[email] = &account{userID: userID, password: password}
	}
}

// WithProfile seeds a profile row.
func WithProfile(p *filmila.Profile) Option {
	return func(s *state) {
		cp := *p
		s.profiles[p.ID] = &cp
	}
}

// WithFilm seeds a film row.
func WithFilm(f *filmila.Film) Option {
	return func(s *state) {
		cp := *f
		s.films[f.ID] = &cp
	}
}

// NewClient creates a *filmila.Client with all services wired to
// in-memory fakes. The returned Auth is an *Auth, so tests can type-assert
// it to drive the event feed directly.
func NewClient(opts ...Option) *filmila.Client {
	s := newState(opts...)

	c, _ := filmila.NewClient(
		filmila.Config{APIURL: "fake://localhost", AnonKey: "fake"},
		filmila.WithAuthService(newAuth(s)),
		filmila.WithProfileStore(&ProfileStore{s: s}),
		filmila.WithFilmStore(&FilmStore{s: s}),
		filmila.WithObjectStore(&ObjectStore{s: s}),
		filmila.WithPaymentService(&PaymentService{s: s}),
	)
	return c
}

func newState(opts ...Option) *state {
	s := &state{
		accounts: make(map[string]*account),
		profiles: make(map[string]*filmila.Profile),
		films:    make(map[string]*filmila.Film),
		objects:  make(map[string][]byte),
		sessions: make(map[string]*filmila.CheckoutSession),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- AuthService ---

// Auth is an in-memory filmila.AuthService. Emit lets tests push
// arbitrary auth events through registered subscribers.
type Auth struct {
	s *state

	mu      sync.Mutex
	current *filmila.Session
	subs    map[int]func(filmila.AuthEvent)
	nextSub int
}

var _ filmila.AuthService = (*Auth)(nil)

// NewAuthService creates a standalone fake auth service with seeded
// options. Prefer NewClient when the test needs several collaborators
// sharing state.
func NewAuthService(opts ...Option) *Auth {
	return newAuth(newState(opts...))
}

func newAuth(s *state) *Auth {
	return &Auth{s: s, subs: make(map[int]func(filmila.AuthEvent))}
}

func (a *Auth) CurrentSession(_ context.Context) (*filmila.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, nil
}

func (a *Auth) OnStateChange(fn func(filmila.AuthEvent)) filmila.Unsubscribe {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

func (a *Auth) SignIn(_ context.Context, creds filmila.Credentials) (*filmila.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	a.s.mu.RLock()
	acct, ok := a.s.accounts[creds.Email]
	a.s.mu.RUnlock()
	if !ok || acct.password != creds.Password {
		return nil, fmt.Errorf("filmila/fake: %w", filmila.ErrInvalidCredentials)
	}

	session := a.newSession(acct.userID, creds.Email)
	a.setCurrent(session)
	a.Emit(filmila.AuthEvent{Kind: filmila.EventSignedIn, Session: session})
	return session, nil
}

func (a *Auth) SignUp(_ context.Context, creds filmila.Credentials) (*filmila.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	a.s.mu.Lock()
	if _, exists := a.s.accounts[creds.Email]; exists {
		a.s.mu.Unlock()
		return nil, fmt.Errorf("filmila/fake: account %q: %w", creds.Email, filmila.ErrConflict)
	}
	userID := uuid.NewString()
	a.s.accounts[creds.Email] = &account{userID: userID, password: creds.Password}
	a.s.mu.Unlock()

	session := a.newSession(userID, creds.Email)
	a.setCurrent(session)
	a.Emit(filmila.AuthEvent{Kind: filmila.EventSignedIn, Session: session})
	return session, nil
}

func (a *Auth) SignOut(_ context.Context) error {
	a.setCurrent(nil)
	a.Emit(filmila.AuthEvent{Kind: filmila.EventSignedOut})
	return nil
}

// Emit delivers an event to all subscribers, in subscription order.
func (a *Auth) Emit(ev filmila.AuthEvent) {
	a.mu.Lock()
	ids := make([]int, 0, len(a.subs))
	for id := range a.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(filmila.AuthEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, a.subs[id])
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// SetSession replaces the current session without emitting an event.
func (a *Auth) SetSession(s *filmila.Session) { a.setCurrent(s) }

func (a *Auth) setCurrent(s *filmila.Session) {
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
}

func (a *Auth) newSession(userID, email string) *filmila.Session {
	now := time.Now()
	return &filmila.Session{
		UserID:       userID,
		Email:        email,
		AccessToken:  "fake-access-" + uuid.NewString(),
		RefreshToken: "fake-refresh-" + uuid.NewString(),
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

// --- ProfileStore ---

// ProfileStore is an in-memory filmila.ProfileStore.
type ProfileStore struct{ s *state }

var _ filmila.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates a standalone fake profile store.
func NewProfileStore(opts ...Option) *ProfileStore {
	return &ProfileStore{s: newState(opts...)}
}

func (f *ProfileStore) FindByID(_ context.Context, id string) (*filmila.Profile, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	p, ok := f.s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("filmila/fake: profile %q: %w", id, filmila.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *ProfileStore) InsertIfAbsent(_ context.Context, p *filmila.Profile) (*filmila.Profile, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("filmila/fake: %w: profile id is required", filmila.ErrInvalidInput)
	}

	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if existing, ok := f.s.profiles[p.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	f.s.profiles[p.ID] = &cp
	out := cp
	return &out, nil
}

// --- FilmStore ---

// FilmStore is an in-memory filmila.FilmStore.
type FilmStore struct{ s *state }

var _ filmila.FilmStore = (*FilmStore)(nil)

// NewFilmStore creates a standalone fake film store.
func NewFilmStore(opts ...Option) *FilmStore {
	return &FilmStore{s: newState(opts...)}
}

func (f *FilmStore) List(_ context.Context, opts filmila.ListOptions) ([]*filmila.Film, int, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	all := make([]*filmila.Film, 0, len(f.s.films))
	for _, fl := range f.s.films {
		if fl.Status == filmila.FilmApproved {
			cp := *fl
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 {
		size = 20
	}

	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (f *FilmStore) Get(_ context.Context, id string) (*filmila.Film, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	fl, ok := f.s.films[id]
	if !ok {
		return nil, fmt.Errorf("filmila/fake: film %q: %w", id, filmila.ErrNotFound)
	}
	cp := *fl
	return &cp, nil
}

func (f *FilmStore) Insert(_ context.Context, fl *filmila.Film) (*filmila.Film, error) {
	if fl == nil || fl.Title == "" || fl.FilmmakerID == "" {
		return nil, fmt.Errorf("filmila/fake: %w: title and filmmaker id are required", filmila.ErrInvalidInput)
	}

	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	cp := *fl
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if _, exists := f.s.films[cp.ID]; exists {
		return nil, fmt.Errorf("filmila/fake: film %q: %w", cp.ID, filmila.ErrConflict)
	}
	cp.Status = filmila.FilmPending
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	f.s.films[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *FilmStore) UpdateStatus(_ context.Context, id string, status filmila.FilmStatus) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	fl, ok := f.s.films[id]
	if !ok {
		return fmt.Errorf("filmila/fake: film %q: %w", id, filmila.ErrNotFound)
	}
	fl.Status = status
	return nil
}

// --- ObjectStore ---

// ObjectStore is an in-memory filmila.ObjectStore.
type ObjectStore struct{ s *state }

var _ filmila.ObjectStore = (*ObjectStore)(nil)

// NewObjectStore creates a standalone fake object store.
func NewObjectStore(opts ...Option) *ObjectStore {
	return &ObjectStore{s: newState(opts...)}
}

func (f *ObjectStore) PutObject(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("filmila/fake: %w: key cannot be empty", filmila.ErrInvalidInput)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("filmila/fake: read object: %w", err)
	}

	f.s.mu.Lock()
	f.s.objects[key] = data
	f.s.mu.Unlock()

	return "fake://objects/" + key, nil
}

// Object returns the stored bytes for key, for assertions in tests.
func (f *ObjectStore) Object(key string) ([]byte, bool) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	data, ok := f.s.objects[key]
	return data, ok
}

// --- PaymentService ---

// PaymentService is an in-memory filmila.PaymentService. Sessions are
// created open; CompleteSession marks one paid.
type PaymentService struct{ s *state }

var _ filmila.PaymentService = (*PaymentService)(nil)

// NewPaymentService creates a standalone fake payment service.
func NewPaymentService(opts ...Option) *PaymentService {
	return &PaymentService{s: newState(opts...)}
}

func (f *PaymentService) CreateCheckoutSession(_ context.Context, amountCents int64, filmID, _, _ string) (*filmila.CheckoutSession, error) {
	if amountCents <= 0 || filmID == "" {
		return nil, fmt.Errorf("filmila/fake: %w: amount and film id are required", filmila.ErrInvalidInput)
	}

	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	f.s.nextID++
	session := &filmila.CheckoutSession{
		ID:          fmt.Sprintf("cs_fake_%d", f.s.nextID),
		URL:         fmt.Sprintf("fake://checkout/cs_fake_%d", f.s.nextID),
		Status:      "open",
		AmountCents: amountCents,
		FilmID:      filmID,
	}
	f.s.sessions[session.ID] = session
	cp := *session
	return &cp, nil
}

func (f *PaymentService) RetrieveSession(_ context.Context, id string) (*filmila.CheckoutSession, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	session, ok := f.s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("filmila/fake: checkout session %q: %w", id, filmila.ErrNotFound)
	}
	cp := *session
	return &cp, nil
}

// CompleteSession marks a checkout session complete, simulating a
// successful payment redirect.
func (f *PaymentService) CompleteSession(id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	session, ok := f.s.sessions[id]
	if !ok {
		return fmt.Errorf("filmila/fake: checkout session %q: %w", id, filmila.ErrNotFound)
	}
	session.Status = "complete"
	return nil
}
