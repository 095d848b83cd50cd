package filmila

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consumed by ConfigFromEnv.
const (
	EnvAPIURL     = "FILMILA_API_URL"
	EnvAnonKey    = "FILMILA_ANON_KEY"
	EnvPaymentKey = "FILMILA_PAYMENT_KEY"

	EnvAuthURL     = "FILMILA_AUTH_URL"
	EnvStorageURL  = "FILMILA_STORAGE_URL"
	EnvPaymentsURL = "FILMILA_PAYMENTS_URL"
	EnvJWKSURL     = "FILMILA_JWKS_URL"
)

// DefaultRequestTimeout bounds individual collaborator calls.
const DefaultRequestTimeout = 10 * time.Second

// Config holds connection and behavior configuration for the hosted backends.
type Config struct {
	// APIURL is the base URL of the hosted backend (auth, rows, realtime).
	APIURL string `yaml:"api_url"`

	// AnonKey is the publishable API key sent with every backend request.
	AnonKey string `yaml:"anon_key"`

	// PaymentKey is the payment processor's secret key. Required only when
	// the payments adapter is wired.
	PaymentKey string `yaml:"payment_key"`

	// AuthURL overrides the auth endpoint. Default: APIURL + "/auth/v1".
	AuthURL string `yaml:"auth_url"`

	// StorageURL overrides the object storage endpoint.
	// Default: APIURL + "/storage/v1".
	StorageURL string `yaml:"storage_url"`

	// PaymentsURL overrides the payment processor endpoint.
	PaymentsURL string `yaml:"payments_url"`

	// JWKSUrl is the URL to fetch public keys for local token verification.
	// Default: AuthURL + "/.well-known/jwks.json".
	JWKSUrl string `yaml:"jwks_url"`

	// RequestTimeout bounds individual HTTP calls. Default: 10s.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ConfigFromEnv builds a Config from environment variables. Every missing
// required variable is reported in a single error so the operator sees the
// full diagnostic at once.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		APIURL:      os.Getenv(EnvAPIURL),
		AnonKey:     os.Getenv(EnvAnonKey),
		PaymentKey:  os.Getenv(EnvPaymentKey),
		AuthURL:     os.Getenv(EnvAuthURL),
		StorageURL:  os.Getenv(EnvStorageURL),
		PaymentsURL: os.Getenv(EnvPaymentsURL),
		JWKSUrl:     os.Getenv(EnvJWKSURL),
	}

	var missing []string
	if cfg.APIURL == "" {
		missing = append(missing, EnvAPIURL)
	}
	if cfg.AnonKey == "" {
		missing = append(missing, EnvAnonKey)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("filmila: %w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadConfig reads an optional YAML config file, then applies environment
// overrides. Environment always wins so deployments can patch a checked-in
// file without editing it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("filmila: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("filmila: parse config: %w", err)
	}

	overrideFromEnv(&cfg.APIURL, EnvAPIURL)
	overrideFromEnv(&cfg.AnonKey, EnvAnonKey)
	overrideFromEnv(&cfg.PaymentKey, EnvPaymentKey)
	overrideFromEnv(&cfg.AuthURL, EnvAuthURL)
	overrideFromEnv(&cfg.StorageURL, EnvStorageURL)
	overrideFromEnv(&cfg.PaymentsURL, EnvPaymentsURL)
	overrideFromEnv(&cfg.JWKSUrl, EnvJWKSURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Validate reports the required fields that are absent.
func (c Config) Validate() error {
	var missing []string
	if c.APIURL == "" {
		missing = append(missing, "api_url")
	}
	if c.AnonKey == "" {
		missing = append(missing, "anon_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("filmila: %w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	base := strings.TrimRight(c.APIURL, "/")
	if c.AuthURL == "" {
		c.AuthURL = base + "/auth/v1"
	}
	if c.StorageURL == "" {
		c.StorageURL = base + "/storage/v1"
	}
	if c.JWKSUrl == "" {
		c.JWKSUrl = strings.TrimRight(c.AuthURL, "/") + "/.well-known/jwks.json"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

func overrideFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
