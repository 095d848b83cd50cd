// Package profilerest implements filmila.ProfileStore against the hosted
// row-storage REST API.
//
// Lookups are filtered GETs returning JSON arrays; creation is a POST with
// conflict-ignore semantics so concurrent first-hydrations converge on a
// single row.
package profilerest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	filmila "github.com/filmila/filmila-go"
)

const profilesTable = "profiles"

// Store is the REST adapter for profile rows.
type Store struct {
	baseURL     string
	anonKey     string
	httpClient  *http.Client
	logger      *slog.Logger
	tokenSource func() string
}

// compile-time check
var _ filmila.ProfileStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTokenSource supplies the caller's access token for row-level
// authorization. The func is consulted per request.
func WithTokenSource(fn func() string) Option {
	return func(s *Store) { s.tokenSource = fn }
}

// New creates a Store for the row API at baseURL (e.g.
// "https://api.filmila.app/rest/v1").
func New(baseURL, anonKey string, opts ...Option) *Store {
	s := &Store{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: filmila.DefaultRequestTimeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FindByID returns the profile for a user id, or ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (*filmila.Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("filmila/profilerest: %w: id cannot be empty", filmila.ErrInvalidInput)
	}

	q := url.Values{
		"id":     {"eq." + id},
		"select": {"*"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", s.baseURL, profilesTable, q.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("filmila/profilerest: create request: %w", err)
	}
	s.setHeaders(req)

	rows, err := s.doRows(req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("filmila/profilerest: profile %q: %w", id, filmila.ErrNotFound)
	}
	return s.decode(rows[0]), nil
}

// InsertIfAbsent writes a profile unless one already exists for its id and
// returns the winning row either way. A lost insert race resolves by
// re-reading the existing row.
func (s *Store) InsertIfAbsent(ctx context.Context, p *filmila.Profile) (*filmila.Profile, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("filmila/profilerest: %w: profile id cannot be empty", filmila.ErrInvalidInput)
	}

	body, _ := json.Marshal(profileRow{
		ID:          p.ID,
		Email:       p.Email,
		Role:        string(p.Role),
		DisplayName: p.DisplayName,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s?on_conflict=id", s.baseURL, profilesTable), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("filmila/profilerest: create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Prefer", "resolution=ignore-duplicates,return=representation")

	rows, err := s.doRows(req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// Duplicate was ignored: another hydration won the race.
		return s.FindByID(ctx, p.ID)
	}
	return s.decode(rows[0]), nil
}

// --- internals ---

// profileRow is the row-storage JSON shape for a profile.
type profileRow struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// doRows executes a request expecting a JSON array of rows.
func (s *Store) doRows(req *http.Request) ([]profileRow, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filmila/profilerest: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("filmila/profilerest: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return nil, fmt.Errorf("filmila/profilerest: %w", filmila.ErrConflict)
	default:
		return nil, fmt.Errorf("filmila/profilerest: row endpoint returned %d: %s", resp.StatusCode, raw)
	}

	if len(raw) == 0 {
		return nil, nil
	}
	var rows []profileRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("filmila/profilerest: decode rows: %w", err)
	}
	return rows, nil
}

// decode normalizes a row into a Profile. Unknown roles map to VIEWER at
// this boundary so call sites never see a raw role string.
func (s *Store) decode(row profileRow) *filmila.Profile {
	role, known := filmila.ParseRole(row.Role)
	if !known {
		s.logger.Warn("unknown role normalized to VIEWER", "profile_id", row.ID, "role", row.Role)
	}

	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}

	return &filmila.Profile{
		ID:          row.ID,
		Email:       row.Email,
		Role:        role,
		DisplayName: row.DisplayName,
		CreatedAt:   createdAt,
	}
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.anonKey)
	if s.tokenSource != nil {
		if tok := s.tokenSource(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
}
