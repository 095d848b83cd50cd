// Package token verifies Filmila access tokens locally using the auth
// service's JWKS endpoint (RFC 7517).
//
// RSA public keys are fetched once, cached, and refreshed on an interval or
// on an unknown key id, so a persisted token can be validated into a Session
// identity without a round trip to the auth backend.
package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	filmila "github.com/filmila/filmila-go"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates RS256 access tokens against cached JWKS keys.
type Verifier struct {
	jwksURL         string
	httpClient      *http.Client
	refreshInterval time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // kid → public key
	lastFetch time.Time
}

// Option configures the Verifier.
type Option func(*Verifier)

// WithHTTPClient sets a custom HTTP client for fetching JWKS.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithRefreshInterval sets how often cached keys are refreshed.
// Default: 1 hour.
func WithRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) { v.refreshInterval = d }
}

// NewVerifier creates a verifier against the given JWKS endpoint.
func NewVerifier(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL:         jwksURL,
		httpClient:      http.DefaultClient,
		refreshInterval: 1 * time.Hour,
		keys:            make(map[string]*rsa.PublicKey),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify validates an access token string and returns the session identity
// it proves. The returned Session carries the token itself so callers can
// reuse it for backend calls.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*filmila.Session, error) {
	parser := jwt.NewParser(jwt.WithExpirationRequired())

	tok, err := parser.Parse(tokenString, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		kid, _ := tok.Header["kid"].(string)
		return v.getKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("filmila/token: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("filmila/token: invalid token claims")
	}

	return sessionFromClaims(claims, tokenString), nil
}

// getKey returns the RSA public key for the given kid, fetching/refreshing
// as needed.
func (v *Verifier) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, found := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.refreshInterval
	v.mu.RUnlock()

	if found && !stale {
		return key, nil
	}

	// Fetch fresh keys (kid mismatch or cache expired)
	if err := v.refresh(ctx); err != nil {
		if found {
			return key, nil // use stale key if refresh fails
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if key, ok := v.keys[kid]; ok {
		return key, nil
	}

	// No kid specified, use the first available key
	if kid == "" {
		for _, k := range v.keys {
			return k, nil
		}
	}

	return nil, fmt.Errorf("filmila/token: key not found for kid %q", kid)
}

// refresh fetches the JWKS from the configured URL and updates the cache.
func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("filmila/token: create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("filmila/token: fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("filmila/token: jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwksResp jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return fmt.Errorf("filmila/token: decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwksResp.Keys))
	for _, jwk := range jwksResp.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			continue // skip malformed keys
		}
		keys[jwk.Kid] = pub
	}

	if len(keys) == 0 {
		return fmt.Errorf("filmila/token: no valid RSA signing keys found")
	}

	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()

	return nil
}

// JWKS JSON types

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k *jwkKey) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// sessionFromClaims maps verified claims onto the session identity.
func sessionFromClaims(m jwt.MapClaims, raw string) *filmila.Session {
	s := &filmila.Session{AccessToken: raw}

	if v, ok := m["sub"].(string); ok {
		s.UserID = v
	}
	if v, ok := m["email"].(string); ok {
		s.Email = v
	}
	if v, ok := m["iat"].(float64); ok {
		s.IssuedAt = time.Unix(int64(v), 0)
	}
	if v, ok := m["exp"].(float64); ok {
		s.ExpiresAt = time.Unix(int64(v), 0)
	}
	return s
}
