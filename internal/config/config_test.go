package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every PORTALSYNC_ env var that Load() reads.
var allConfigKeys = []string{
	"PORTALSYNC_SESSION_DIR",
	"PORTALSYNC_BASE_URL",
	"PORTALSYNC_CREDENTIAL_TTL",
	"PORTALSYNC_HEADLESS",
	"PORTALSYNC_USERNAME",
	"PORTALSYNC_PASSWORD",
	"PORTALSYNC_TOTP_SECRET",
	"PORTALSYNC_RATE_CAPACITY",
	"PORTALSYNC_RATE_REFILL",
	"PORTALSYNC_REQUEST_TIMEOUT",
}

// isolateConfigEnv saves and unsets all PORTALSYNC_ env vars so tests
// don't inherit values from the host environment.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PORTALSYNC_SESSION_DIR", t.TempDir())
	t.Setenv("PORTALSYNC_BASE_URL", "https://portal.example.edu")
	t.Setenv("PORTALSYNC_USERNAME", "stud1234")
	t.Setenv("PORTALSYNC_PASSWORD", "hunter22222")
	t.Setenv("PORTALSYNC_CREDENTIAL_TTL", "2h")
	t.Setenv("PORTALSYNC_HEADLESS", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.edu", cfg.BaseURL)
	assert.Equal(t, "stud1234", cfg.Username)
	assert.Equal(t, "hunter22222", cfg.Password.Value())
	assert.Equal(t, 2*time.Hour, cfg.CredentialTTL)
	assert.False(t, cfg.Headless)
	assert.True(t, cfg.HasLoginCredentials())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PORTALSYNC_SESSION_DIR", t.TempDir())
	t.Setenv("PORTALSYNC_BASE_URL", "https://portal.example.edu")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultCredentialTTL, cfg.CredentialTTL)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultRateCapacity, cfg.RateCapacity)
	assert.Equal(t, DefaultRateRefill, cfg.RateRefill)
	assert.True(t, cfg.Headless)
	assert.Empty(t, cfg.CacheTTLs)
	assert.False(t, cfg.HasLoginCredentials())
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	isolateConfigEnv(t)
	dir := t.TempDir()
	content := `
base_url = "https://file.example.edu"
credential_ttl = "45m"
username = "fromfile"

[rate_limit]
capacity = 20
refill_per_second = 5.0

[cache_ttls]
profile = "5m"
messages = "30s"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))
	t.Setenv("PORTALSYNC_SESSION_DIR", dir)
	t.Setenv("PORTALSYNC_BASE_URL", "https://env.example.edu")

	cfg, err := Load()

	require.NoError(t, err)
	// Env wins over file.
	assert.Equal(t, "https://env.example.edu", cfg.BaseURL)
	// File wins over defaults.
	assert.Equal(t, 45*time.Minute, cfg.CredentialTTL)
	assert.Equal(t, "fromfile", cfg.Username)
	assert.Equal(t, 20, cfg.RateCapacity)
	assert.Equal(t, 5.0, cfg.RateRefill)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTLs["profile"])
	assert.Equal(t, 30*time.Second, cfg.CacheTTLs["messages"])
}

func TestLoad_MissingBaseURL(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PORTALSYNC_SESSION_DIR", t.TempDir())

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORTALSYNC_BASE_URL")
}

func TestLoad_RejectsPlaintextHTTP(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PORTALSYNC_SESSION_DIR", t.TempDir())
	t.Setenv("PORTALSYNC_BASE_URL", "http://portal.example.edu")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https")
}

func TestLoad_InvalidFileDuration(t *testing.T) {
	isolateConfigEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("base_url = \"https://x.example.edu\"\ncredential_ttl = \"soon\"\n"), 0o600))
	t.Setenv("PORTALSYNC_SESSION_DIR", dir)

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential_ttl")
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PORTALSYNC_SESSION_DIR", t.TempDir())
	t.Setenv("PORTALSYNC_BASE_URL", "https://portal.example.edu")
	t.Setenv("PORTALSYNC_RATE_CAPACITY", "many")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORTALSYNC_RATE_CAPACITY")
}

func TestLoad_RejectsZeroRefill(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PORTALSYNC_SESSION_DIR", t.TempDir())
	t.Setenv("PORTALSYNC_BASE_URL", "https://portal.example.edu")
	t.Setenv("PORTALSYNC_RATE_REFILL", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refill")
}
