package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/storage"
	"github.com/stretchr/testify/require"
)

const anonKey = "anon-key-1"

func TestPutObject_ReturnsPublicURL(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, anonKey, r.Header.Get("apikey"))
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := storage.New(srv.URL, anonKey)
	url, err := store.PutObject(context.Background(), "maker-1/trailer.mp4",
		strings.NewReader("video-bytes"), "video/mp4")
	require.NoError(t, err)

	require.Equal(t, "/object/films/maker-1/trailer.mp4", gotPath)
	require.Equal(t, "video/mp4", gotContentType)
	require.Equal(t, "video-bytes", string(gotBody))
	require.Equal(t, srv.URL+"/object/public/films/maker-1/trailer.mp4", url)
}

func TestPutObject_DefaultsContentType(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	store := storage.New(srv.URL, anonKey)
	_, err := store.PutObject(context.Background(), "k", strings.NewReader("x"), "")
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", gotContentType)
}

func TestPutObject_RejectsEmptyAndTraversalKeys(t *testing.T) {
	store := storage.New("http://unused", anonKey)

	_, err := store.PutObject(context.Background(), "", strings.NewReader("x"), "")
	require.ErrorIs(t, err, filmila.ErrInvalidInput)

	_, err = store.PutObject(context.Background(), "../secrets", strings.NewReader("x"), "")
	require.ErrorIs(t, err, filmila.ErrInvalidInput)
}

func TestPutObject_KnownOversizeRejectedBeforeUpload(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	store := storage.New(srv.URL, anonKey, storage.WithMaxObjectSize(8))
	_, err := store.PutObject(context.Background(), "big", strings.NewReader("123456789"), "")
	require.ErrorIs(t, err, filmila.ErrInvalidInput)
	require.Zero(t, requests, "an upload known to exceed the cap must never reach the backend")
}

func TestPutObject_UnknownLengthStreamCutAtCap(t *testing.T) {
	var received int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	// io.LimitReader hides the length, forcing the streaming path.
	body := io.LimitReader(strings.NewReader("123456789"), 9)
	store := storage.New(srv.URL, anonKey, storage.WithMaxObjectSize(8))
	_, err := store.PutObject(context.Background(), "big", body, "")
	require.ErrorIs(t, err, filmila.ErrInvalidInput)
	require.LessOrEqual(t, received, int64(9), "stream must be cut at the cap")
}

func TestPutObject_ConflictSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	store := storage.New(srv.URL, anonKey)
	_, err := store.PutObject(context.Background(), "dup", strings.NewReader("x"), "")
	require.ErrorIs(t, err, filmila.ErrConflict)
}

func TestPutObject_SendsBearerWhenTokenAvailable(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	store := storage.New(srv.URL, anonKey,
		storage.WithTokenSource(func() string { return "tok-1" }))
	_, err := store.PutObject(context.Background(), "k", strings.NewReader("x"), "")
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-1", gotAuth)
}

func TestPutObject_EscapesKeySegments(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
	}))
	defer srv.Close()

	store := storage.New(srv.URL, anonKey)
	_, err := store.PutObject(context.Background(), "maker 1/my film.mp4", strings.NewReader("x"), "")
	require.NoError(t, err)
	require.Equal(t, "/object/films/maker%201/my%20film.mp4", gotURI)
}
