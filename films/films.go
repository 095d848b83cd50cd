// Package films implements filmila.FilmStore against the hosted row-storage
// REST API, and a realtime watcher for film changes.
package films

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	filmila "github.com/filmila/filmila-go"
)

const filmsTable = "films"

// Store is the REST adapter for film rows.
type Store struct {
	baseURL     string
	anonKey     string
	httpClient  *http.Client
	logger      *slog.Logger
	tokenSource func() string
}

// compile-time check
var _ filmila.FilmStore = (*Store)(nil)

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

// WithTokenSource supplies the caller's access token per request.
func WithTokenSource(fn func() string) Option {
	return func(s *Store) { s.tokenSource = fn }
}

// New creates a Store for the row API at baseURL.
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

// List returns approved films, newest first, with pagination. The second
// return value is the total row count across all pages.
func (s *Store) List(ctx context.Context, opts filmila.ListOptions) ([]*filmila.Film, int, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 {
		size = 20
	}

	q := url.Values{
		"status": {"eq." + string(filmila.FilmApproved)},
		"select": {"*"},
		"order":  {"created_at.desc"},
		"limit":  {strconv.Itoa(size)},
		"offset": {strconv.Itoa((page - 1) * size)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", s.baseURL, filmsTable, q.Encode()), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("filmila/films: create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Prefer", "count=exact")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("filmila/films: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("filmila/films: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, 0, fmt.Errorf("filmila/films: row endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var rows []filmRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, 0, fmt.Errorf("filmila/films: decode rows: %w", err)
	}

	films := make([]*filmila.Film, len(rows))
	for i, row := range rows {
		films[i] = row.film()
	}
	return films, totalFromContentRange(resp.Header.Get("Content-Range"), len(films)), nil
}

// Get returns a film by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*filmila.Film, error) {
	if id == "" {
		return nil, fmt.Errorf("filmila/films: %w: id cannot be empty", filmila.ErrInvalidInput)
	}

	q := url.Values{"id": {"eq." + id}, "select": {"*"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", s.baseURL, filmsTable, q.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("filmila/films: create request: %w", err)
	}
	s.setHeaders(req)

	rows, err := s.doRows(req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("filmila/films: film %q: %w", id, filmila.ErrNotFound)
	}
	return rows[0].film(), nil
}

// Insert creates a film row. New films always enter moderation as PENDING
// regardless of the status supplied.
func (s *Store) Insert(ctx context.Context, f *filmila.Film) (*filmila.Film, error) {
	if f == nil || f.Title == "" || f.FilmmakerID == "" {
		return nil, fmt.Errorf("filmila/films: %w: title and filmmaker id are required", filmila.ErrInvalidInput)
	}

	row := rowFromFilm(f)
	row.Status = string(filmila.FilmPending)
	body, _ := json.Marshal(row)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s", s.baseURL, filmsTable), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("filmila/films: create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	rows, err := s.doRows(req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("filmila/films: insert returned no representation")
	}
	return rows[0].film(), nil
}

// UpdateStatus moves a film through moderation. ErrConflict is returned
// when the row changed underneath the caller, so the UI can prompt a
// refresh-and-retry.
func (s *Store) UpdateStatus(ctx context.Context, id string, status filmila.FilmStatus) error {
	if id == "" {
		return fmt.Errorf("filmila/films: %w: id cannot be empty", filmila.ErrInvalidInput)
	}

	body, _ := json.Marshal(map[string]string{"status": string(status)})
	q := url.Values{"id": {"eq." + id}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/%s?%s", s.baseURL, filmsTable, q.Encode()), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("filmila/films: create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	rows, err := s.doRows(req)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("filmila/films: film %q: %w", id, filmila.ErrNotFound)
	}
	return nil
}

// --- internals ---

// filmRow is the row-storage JSON shape for a film.
type filmRow struct {
	ID          string `json:"id"`
	FilmmakerID string `json:"filmmaker_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	VideoURL    string `json:"video_url,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func rowFromFilm(f *filmila.Film) filmRow {
	return filmRow{
		ID:          f.ID,
		FilmmakerID: f.FilmmakerID,
		Title:       f.Title,
		Description: f.Description,
		PriceCents:  f.PriceCents,
		VideoURL:    f.VideoURL,
		Status:      string(f.Status),
	}
}

func (r filmRow) film() *filmila.Film {
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return &filmila.Film{
		ID:          r.ID,
		FilmmakerID: r.FilmmakerID,
		Title:       r.Title,
		Description: r.Description,
		PriceCents:  r.PriceCents,
		VideoURL:    r.VideoURL,
		Status:      filmila.FilmStatus(strings.ToUpper(r.Status)),
		CreatedAt:   createdAt,
	}
}

func (s *Store) doRows(req *http.Request) ([]filmRow, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filmila/films: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("filmila/films: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return nil, fmt.Errorf("filmila/films: %w", filmila.ErrConflict)
	default:
		return nil, fmt.Errorf("filmila/films: row endpoint returned %d: %s", resp.StatusCode, raw)
	}

	if len(raw) == 0 {
		return nil, nil
	}
	var rows []filmRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("filmila/films: decode rows: %w", err)
	}
	return rows, nil
}

// totalFromContentRange parses "items 0-9/42" range headers; falls back to
// the page length when the header is absent or malformed.
func totalFromContentRange(header string, fallback int) int {
	if i := strings.LastIndex(header, "/"); i >= 0 {
		if total, err := strconv.Atoi(header[i+1:]); err == nil {
			return total
		}
	}
	return fallback
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
