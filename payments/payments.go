// Package payments implements filmila.PaymentService against the hosted
// checkout API.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	filmila "github.com/filmila/filmila-go"
	"github.com/filmila/filmila-go/metrics"
)

// DefaultCurrency is the settlement currency for checkout sessions.
const DefaultCurrency = "usd"

// Service creates and retrieves checkout sessions.
type Service struct {
	baseURL    string
	secretKey  string
	currency   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// newIdempotencyKey is swapped in tests.
	newIdempotencyKey func() string
}

var _ filmila.PaymentService = (*Service)(nil)

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

// WithMetrics wires checkout instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCurrency overrides the settlement currency.
func WithCurrency(code string) Option {
	return func(s *Service) { s.currency = strings.ToLower(code) }
}

// WithIdempotencyKeyFunc overrides idempotency key generation. A function
// returning a stable key per logical purchase makes caller-side retries
// safe: the processor collapses submissions that share a key.
func WithIdempotencyKeyFunc(fn func() string) Option {
	return func(s *Service) { s.newIdempotencyKey = fn }
}

// New creates a Service for the checkout API at baseURL.
func New(baseURL, secretKey string, opts ...Option) *Service {
	s := &Service{
		baseURL:           strings.TrimRight(baseURL, "/"),
		secretKey:         secretKey,
		currency:          DefaultCurrency,
		httpClient:        &http.Client{Timeout: filmila.DefaultRequestTimeout},
		logger:            slog.Default(),
		metrics:           metrics.New(false),
		newIdempotencyKey: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateCheckoutSession opens a hosted checkout page for a film purchase
// and returns the session carrying its redirect URL. Each call is an
// independent session tagged with a fresh idempotency key; callers that
// retry a purchase after a network failure should pin one key per logical
// purchase via WithIdempotencyKeyFunc so the processor can deduplicate.
func (s *Service) CreateCheckoutSession(ctx context.Context, amountCents int64, filmID, successURL, cancelURL string) (*filmila.CheckoutSession, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("filmila/payments: %w: amount must be positive", filmila.ErrInvalidInput)
	}
	if filmID == "" {
		return nil, fmt.Errorf("filmila/payments: %w: film id is required", filmila.ErrInvalidInput)
	}

	form := url.Values{
		"mode":              {"payment"},
		"amount":            {strconv.FormatInt(amountCents, 10)},
		"currency":          {s.currency},
		"success_url":       {successURL},
		"cancel_url":        {cancelURL},
		"metadata[film_id]": {filmID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("filmila/payments: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Idempotency-Key", s.newIdempotencyKey())

	session, err := s.do(req)
	if err != nil {
		s.metrics.RecordCheckout("error")
		return nil, err
	}
	s.metrics.RecordCheckout("created")
	s.logger.Info("checkout session created",
		"session_id", session.ID, "film_id", filmID, "amount_cents", amountCents)
	return session, nil
}

// RetrieveSession fetches a checkout session by id, typically to confirm
// payment after the success redirect.
func (s *Service) RetrieveSession(ctx context.Context, sessionID string) (*filmila.CheckoutSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("filmila/payments: %w: session id is required", filmila.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("filmila/payments: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	return s.do(req)
}

type sessionPayload struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	AmountTotal int64  `json:"amount_total"`
	Currency    string `json:"currency"`
	Metadata    struct {
		FilmID string `json:"film_id"`
	} `json:"metadata"`
}

func (s *Service) do(req *http.Request) (*filmila.CheckoutSession, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filmila/payments: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("filmila/payments: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return nil, fmt.Errorf("filmila/payments: session: %w", filmila.ErrNotFound)
	default:
		return nil, fmt.Errorf("filmila/payments: checkout endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("filmila/payments: decode session: %w", err)
	}
	return &filmila.CheckoutSession{
		ID:          payload.ID,
		URL:         payload.URL,
		Status:      payload.Status,
		AmountCents: payload.AmountTotal,
		FilmID:      payload.Metadata.FilmID,
	}, nil
}
