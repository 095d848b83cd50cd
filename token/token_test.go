package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/filmila/filmila-go/token"
	"github.com/golang-jwt/jwt/v5"
)

// testSetup creates an RSA key pair and a fake JWKS HTTP server.
func testSetup(t *testing.T, kid string) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	server := jwksServer(t, kid, &privateKey.PublicKey)
	return privateKey, server
}

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"keys": []map[string]interface{}{
				{
					"kty": "RSA",
					"use": "sig",
					"kid": kid,
					"alg": "RS256",
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVerify_ValidToken(t *testing.T) {
	kid := "key-1"
	privKey, server := testSetup(t, kid)
	defer server.Close()

	verifier := token.NewVerifier(server.URL)

	now := time.Now()
	tokenStr := signToken(t, privKey, kid, jwt.MapClaims{
		"sub":   "user-123",
		"email": "viewer@example.com",
		"exp":   now.Add(1 * time.Hour).Unix(),
		"iat":   now.Unix(),
	})

	session, err := verifier.Verify(context.Background(), tokenStr)
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}

	if session.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", session.UserID, "user-123")
	}
	if session.Email != "viewer@example.com" {
		t.Errorf("Email = %q, want %q", session.Email, "viewer@example.com")
	}
	if session.AccessToken != tokenStr {
		t.Error("session should carry the verified token")
	}
	if session.IssuedAt.IsZero() || session.ExpiresAt.IsZero() {
		t.Error("IssuedAt/ExpiresAt should be populated from claims")
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	kid := "key-1"
	privKey, server := testSetup(t, kid)
	defer server.Close()

	verifier := token.NewVerifier(server.URL)

	tokenStr := signToken(t, privKey, kid, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-1 * time.Hour).Unix(),
	})

	if _, err := verifier.Verify(context.Background(), tokenStr); err == nil {
		t.Fatal("Verify() expected error for expired token, got nil")
	}
}

func TestVerify_InvalidSignature(t *testing.T) {
	kid := "key-1"
	_, server := testSetup(t, kid)
	defer server.Close()

	// Sign with a DIFFERENT key not in JWKS
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	verifier := token.NewVerifier(server.URL)

	tokenStr := signToken(t, otherKey, kid, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})

	if _, err := verifier.Verify(context.Background(), tokenStr); err == nil {
		t.Fatal("Verify() expected error for invalid signature, got nil")
	}
}

func TestVerify_KidRotationTriggersRefresh(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	// Server starts with key "key-1", then switches to "key-2"
	var currentKid atomic.Value
	currentKid.Store("key-1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kid := currentKid.Load().(string)
		resp := map[string]interface{}{
			"keys": []map[string]interface{}{
				{
					"kty": "RSA",
					"use": "sig",
					"kid": kid,
					"alg": "RS256",
					"n":   base64.RawURLEncoding.EncodeToString(privKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privKey.E)).Bytes()),
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	verifier := token.NewVerifier(server.URL)

	tokenStr := signToken(t, privKey, "key-1", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})
	if _, err := verifier.Verify(context.Background(), tokenStr); err != nil {
		t.Fatalf("first Verify() error: %v", err)
	}

	// Auth backend rotates its signing key
	currentKid.Store("key-2")

	tokenStr2 := signToken(t, privKey, "key-2", jwt.MapClaims{
		"sub": "user-2",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})
	session, err := verifier.Verify(context.Background(), tokenStr2)
	if err != nil {
		t.Fatalf("Verify() after rotation error: %v", err)
	}
	if session.UserID != "user-2" {
		t.Errorf("UserID = %q, want %q", session.UserID, "user-2")
	}
}

func TestVerify_JWKSServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	verifier := token.NewVerifier(server.URL)

	privKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	tokenStr := signToken(t, privKey, "key-1", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})

	if _, err := verifier.Verify(context.Background(), tokenStr); err == nil {
		t.Fatal("Verify() expected error when JWKS server returns 500, got nil")
	}
}

func TestVerify_UnsupportedSigningMethod(t *testing.T) {
	kid := "key-1"
	_, server := testSetup(t, kid)
	defer server.Close()

	verifier := token.NewVerifier(server.URL)

	// HMAC-signed token (not RSA)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})
	tokenStr, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := verifier.Verify(context.Background(), tokenStr); err == nil {
		t.Fatal("Verify() expected error for HS256 token, got nil")
	}
}
