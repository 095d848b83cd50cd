package films_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/films"
	"github.com/stretchr/testify/require"
)

const anonKey = "anon-key-1"

// filmBackend is a minimal in-memory film row API.
type filmBackend struct {
	mu   sync.Mutex
	rows []map[string]any
}

func (b *filmBackend) put(row map[string]any) {
	b.mu.Lock()
	b.rows = append(b.rows, row)
	b.mu.Unlock()
}

func (b *filmBackend) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, anonKey, r.Header.Get("apikey"))
		require.Equal(t, "/films", r.URL.Path)

		b.mu.Lock()
		defer b.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			var out []map[string]any
			if id, ok := filterValue(q.Get("id")); ok {
				for _, row := range b.rows {
					if row["id"] == id {
						out = append(out, row)
					}
				}
				if out == nil {
					out = []map[string]any{}
				}
				_ = json.NewEncoder(w).Encode(out)
				return
			}

			status, _ := filterValue(q.Get("status"))
			var matched []map[string]any
			for _, row := range b.rows {
				if row["status"] == status {
					matched = append(matched, row)
				}
			}
			total := len(matched)
			offset, _ := strconv.Atoi(q.Get("offset"))
			limit, _ := strconv.Atoi(q.Get("limit"))
			if offset > len(matched) {
				offset = len(matched)
			}
			matched = matched[offset:]
			if limit > 0 && limit < len(matched) {
				matched = matched[:limit]
			}
			if matched == nil {
				matched = []map[string]any{}
			}
			w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", offset, offset+len(matched), total))
			_ = json.NewEncoder(w).Encode(matched)

		case http.MethodPost:
			var row map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
			b.rows = append(b.rows, row)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode([]map[string]any{row})

		case http.MethodPatch:
			id, ok := filterValue(r.URL.Query().Get("id"))
			require.True(t, ok)
			var patch map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
			var out []map[string]any
			for _, row := range b.rows {
				if row["id"] == id {
					row["status"] = patch["status"]
					out = append(out, row)
				}
			}
			if out == nil {
				out = []map[string]any{}
			}
			_ = json.NewEncoder(w).Encode(out)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func filterValue(raw string) (string, bool) {
	const prefix = "eq."
	if len(raw) <= len(prefix) {
		return "", false
	}
	return raw[len(prefix):], true
}

func filmRow(id, title, status string) map[string]any {
	return map[string]any{
		"id":           id,
		"filmmaker_id": "maker-1",
		"title":        title,
		"price_cents":  float64(500),
		"status":       status,
		"created_at":   "2026-08-01T10:00:00Z",
	}
}

func TestList_ReturnsApprovedWithTotal(t *testing.T) {
	backend := &filmBackend{}
	backend.put(filmRow("f1", "First", "APPROVED"))
	backend.put(filmRow("f2", "Second", "APPROVED"))
	backend.put(filmRow("f3", "Unreviewed", "PENDING"))
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store := films.New(srv.URL, anonKey)
	got, total, err := store.List(context.Background(), filmila.ListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, got, 2)
	require.Equal(t, filmila.FilmApproved, got[0].Status)
}

func TestList_Paginates(t *testing.T) {
	backend := &filmBackend{}
	for i := 0; i < 5; i++ {
		backend.put(filmRow(fmt.Sprintf("f%d", i), fmt.Sprintf("Film %d", i), "APPROVED"))
	}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store := films.New(srv.URL, anonKey)
	got, total, err := store.List(context.Background(), filmila.ListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, got, 2)
	require.Equal(t, "f2", got[0].ID)
}

func TestGet_NotFound(t *testing.T) {
	backend := &filmBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store := films.New(srv.URL, anonKey)
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, filmila.ErrNotFound)
}

func TestInsert_ForcesPendingStatus(t *testing.T) {
	backend := &filmBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store := films.New(srv.URL, anonKey)
	created, err := store.Insert(context.Background(), &filmila.Film{
		ID:          "f1",
		FilmmakerID: "maker-1",
		Title:       "Sneaky",
		Status:      filmila.FilmApproved, // must be ignored
	})
	require.NoError(t, err)
	require.Equal(t, filmila.FilmPending, created.Status)
}

func TestUpdateStatus_MissingRowIsNotFound(t *testing.T) {
	backend := &filmBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store := films.New(srv.URL, anonKey)
	err := store.UpdateStatus(context.Background(), "missing", filmila.FilmApproved)
	require.ErrorIs(t, err, filmila.ErrNotFound)
}

func TestUpdateStatus_Approves(t *testing.T) {
	backend := &filmBackend{}
	backend.put(filmRow("f1", "First", "PENDING"))
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store := films.New(srv.URL, anonKey)
	require.NoError(t, store.UpdateStatus(context.Background(), "f1", filmila.FilmApproved))

	got, err := store.Get(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, filmila.FilmApproved, got.Status)
}

func TestUpdateStatus_ConflictSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	store := films.New(srv.URL, anonKey)
	err := store.UpdateStatus(context.Background(), "f1", filmila.FilmRejected)
	require.ErrorIs(t, err, filmila.ErrConflict)
}
