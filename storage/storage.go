// Package storage implements filmila.ObjectStore against the hosted
// object-storage REST API.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/metrics"
)

const (
	// DefaultBucket holds uploaded film videos.
	DefaultBucket = "films"

	// DefaultMaxObjectSize caps a single upload at 512 MiB.
	DefaultMaxObjectSize = 512 << 20
)

// Store uploads objects and derives their public URLs.
type Store struct {
	baseURL     string
	anonKey     string
	bucket      string
	maxSize     int64
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tokenSource func() string
}

var _ filmila.ObjectStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithHTTPClient sets a custom HTTP client. Uploads can be large, so the
// client should carry a generous or absent timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics wires upload instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithBucket overrides the target bucket.
func WithBucket(name string) Option {
	return func(s *Store) { s.bucket = name }
}

// WithMaxObjectSize overrides the upload size cap.
func WithMaxObjectSize(n int64) Option {
	return func(s *Store) { s.maxSize = n }
}

// WithTokenSource supplies the caller's access token per request.
func WithTokenSource(fn func() string) Option {
	return func(s *Store) { s.tokenSource = fn }
}

// New creates a Store for the object API at baseURL.
func New(baseURL, anonKey string, opts ...Option) *Store {
	s := &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		bucket:     DefaultBucket,
		maxSize:    DefaultMaxObjectSize,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		metrics:    metrics.New(false),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PutObject streams body to the bucket under key and returns the public
// URL of the stored object. When body's length is known up front an
// over-cap upload is rejected before any request is issued; unknown-length
// streams are cut off at the cap and the upload reported failed, so the
// caller knows the stored object cannot be trusted.
func (s *Store) PutObject(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("filmila/storage: %w: key cannot be empty", filmila.ErrInvalidInput)
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("filmila/storage: %w: key must not contain path traversal", filmila.ErrInvalidInput)
	}
	if n, known := readerLen(body); known && n > s.maxSize {
		return "", fmt.Errorf("filmila/storage: %w: object of %d bytes exceeds %d", filmila.ErrInvalidInput, n, s.maxSize)
	}

	counted := &countingReader{r: io.LimitReader(body, s.maxSize+1)}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key), counted)
	if err != nil {
		return "", fmt.Errorf("filmila/storage: create request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("apikey", s.anonKey)
	if s.tokenSource != nil {
		if tok := s.tokenSource(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("filmila/storage: upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if counted.n > s.maxSize {
		return "", fmt.Errorf("filmila/storage: %w: object exceeds %d bytes", filmila.ErrInvalidInput, s.maxSize)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return "", fmt.Errorf("filmila/storage: object %q: %w", key, filmila.ErrConflict)
	default:
		return "", fmt.Errorf("filmila/storage: object endpoint returned %d: %s", resp.StatusCode, raw)
	}

	s.metrics.RecordUploadBytes(counted.n)
	s.logger.Info("object stored", "bucket", s.bucket, "key", key, "bytes", counted.n)
	return s.PublicURL(key), nil
}

// PublicURL returns the unauthenticated download URL for key.
func (s *Store) PublicURL(key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, s.bucket, escapeKey(key))
}

func (s *Store) objectURL(key string) string {
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, escapeKey(key))
}

// escapeKey escapes each path segment while keeping separators intact.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// readerLen reports the remaining length of body when the reader type
// exposes it.
func readerLen(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case *bytes.Reader:
		return int64(v.Len()), true
	case *bytes.Buffer:
		return int64(v.Len()), true
	case *strings.Reader:
		return int64(v.Len()), true
	}
	return 0, false
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
