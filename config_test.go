package filmila_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	filmila "github.com/filmila/filmila-go"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		filmila.EnvAPIURL, filmila.EnvAnonKey, filmila.EnvPaymentKey,
		filmila.EnvAuthURL, filmila.EnvStorageURL, filmila.EnvPaymentsURL,
		filmila.EnvJWKSURL,
	} {
		t.Setenv(key, "")
	}
}

func TestConfigFromEnv_ReportsAllMissingVariables(t *testing.T) {
	clearEnv(t)

	_, err := filmila.ConfigFromEnv()
	require.ErrorIs(t, err, filmila.ErrMissingConfig)
	require.Contains(t, err.Error(), filmila.EnvAPIURL)
	require.Contains(t, err.Error(), filmila.EnvAnonKey)
}

func TestConfigFromEnv_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(filmila.EnvAPIURL, "https://backend.example.com/")
	t.Setenv(filmila.EnvAnonKey, "anon-1")

	cfg, err := filmila.ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "https://backend.example.com/auth/v1", cfg.AuthURL)
	require.Equal(t, "https://backend.example.com/storage/v1", cfg.StorageURL)
	require.Equal(t, "https://backend.example.com/auth/v1/.well-known/jwks.json", cfg.JWKSUrl)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "filmila.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"api_url: https://file.example.com\n"+
			"anon_key: from-file\n"+
			"auth_url: https://file.example.com/custom-auth\n"), 0o600))

	t.Setenv(filmila.EnvAnonKey, "from-env")

	cfg, err := filmila.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://file.example.com", cfg.APIURL)
	require.Equal(t, "from-env", cfg.AnonKey)
	require.Equal(t, "https://file.example.com/custom-auth", cfg.AuthURL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := filmila.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unclosed"), 0o600))

	_, err := filmila.LoadConfig(path)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	err := filmila.Config{}.Validate()
	require.ErrorIs(t, err, filmila.ErrMissingConfig)

	require.NoError(t, filmila.Config{APIURL: "https://x", AnonKey: "k"}.Validate())
}
