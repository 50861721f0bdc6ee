// Package config loads application configuration from an optional TOML
// file in the session directory, with PORTALSYNC_ environment variables
// taking precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ewinther/portalsync/internal/domain/model"
)

const configFileName = "config.toml"

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultCredentialTTL  = time.Hour
	DefaultRequestTimeout = 30 * time.Second
	DefaultRateCapacity   = 10
	DefaultRateRefill     = 3.0
)

// Config holds the validated application configuration.
type Config struct {
	BaseURL        string
	SessionDir     string
	CredentialTTL  time.Duration
	Headless       bool
	Username       string
	Password       model.Secret
	TOTPSecret     model.Secret
	RateCapacity   int
	RateRefill     float64
	RequestTimeout time.Duration
	// CacheTTLs maps a resource name (as passed to fetch) to the cache
	// lifetime for responses of that resource type.
	CacheTTLs map[string]time.Duration
}

// HasLoginCredentials returns true when both username and password are
// configured. The login flow treats their absence at the credential-entry
// step as a fatal configuration error, so the CLI prompts first.
func (c *Config) HasLoginCredentials() bool {
	return c.Username != "" && !c.Password.IsEmpty()
}

// fileConfig mirrors the config.toml schema. Durations are strings in
// Go duration syntax ("30s", "5m").
type fileConfig struct {
	BaseURL        string            `toml:"base_url"`
	CredentialTTL  string            `toml:"credential_ttl"`
	Headless       *bool             `toml:"headless"`
	Username       string            `toml:"username"`
	Password       string            `toml:"password"`
	TOTPSecret     string            `toml:"totp_secret"`
	RequestTimeout string            `toml:"request_timeout"`
	RateLimit      fileRateLimit     `toml:"rate_limit"`
	CacheTTLs      map[string]string `toml:"cache_ttls"`
}

type fileRateLimit struct {
	Capacity        int     `toml:"capacity"`
	RefillPerSecond float64 `toml:"refill_per_second"`
}

// Load reads configuration and returns a validated Config.
//
// Resolution order per value: default, then config.toml in the session
// directory, then the PORTALSYNC_ environment variable. The session
// directory itself comes from PORTALSYNC_SESSION_DIR, defaulting to
// ~/.portalsync. PORTALSYNC_BASE_URL (or base_url in the file) is
// required and must be HTTPS.
func Load() (*Config, error) {
	sessionDir := os.Getenv("PORTALSYNC_SESSION_DIR")
	if sessionDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		sessionDir = filepath.Join(home, ".portalsync")
	}

	cfg := &Config{
		SessionDir:     sessionDir,
		CredentialTTL:  DefaultCredentialTTL,
		Headless:       true,
		RateCapacity:   DefaultRateCapacity,
		RateRefill:     DefaultRateRefill,
		RequestTimeout: DefaultRequestTimeout,
		CacheTTLs:      map[string]time.Duration{},
	}

	if err := applyFile(cfg, filepath.Join(sessionDir, configFileName)); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if fc.CredentialTTL != "" {
		d, err := time.ParseDuration(fc.CredentialTTL)
		if err != nil {
			return fmt.Errorf("credential_ttl has invalid duration %q: %w", fc.CredentialTTL, err)
		}
		cfg.CredentialTTL = d
	}
	if fc.Headless != nil {
		cfg.Headless = *fc.Headless
	}
	if fc.Username != "" {
		cfg.Username = fc.Username
	}
	if fc.Password != "" {
		cfg.Password = model.NewSecret(fc.Password)
	}
	if fc.TOTPSecret != "" {
		cfg.TOTPSecret = model.NewSecret(fc.TOTPSecret)
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout has invalid duration %q: %w", fc.RequestTimeout, err)
		}
		cfg.RequestTimeout = d
	}
	if fc.RateLimit.Capacity != 0 {
		cfg.RateCapacity = fc.RateLimit.Capacity
	}
	if fc.RateLimit.RefillPerSecond != 0 {
		cfg.RateRefill = fc.RateLimit.RefillPerSecond
	}
	for name, raw := range fc.CacheTTLs {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("cache_ttls.%s has invalid duration %q: %w", name, raw, err)
		}
		cfg.CacheTTLs[name] = d
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORTALSYNC_BASE_URL"); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := os.LookupEnv("PORTALSYNC_CREDENTIAL_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORTALSYNC_CREDENTIAL_TTL has invalid duration %q: %w", v, err)
		}
		cfg.CredentialTTL = d
	}
	if v, ok := os.LookupEnv("PORTALSYNC_HEADLESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PORTALSYNC_HEADLESS has invalid bool %q: %w", v, err)
		}
		cfg.Headless = b
	}
	if v, ok := os.LookupEnv("PORTALSYNC_USERNAME"); ok && v != "" {
		cfg.Username = v
	}
	if v, ok := os.LookupEnv("PORTALSYNC_PASSWORD"); ok && v != "" {
		cfg.Password = model.NewSecret(v)
	}
	if v, ok := os.LookupEnv("PORTALSYNC_TOTP_SECRET"); ok && v != "" {
		cfg.TOTPSecret = model.NewSecret(v)
	}
	if v, ok := os.LookupEnv("PORTALSYNC_RATE_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORTALSYNC_RATE_CAPACITY has invalid int %q: %w", v, err)
		}
		cfg.RateCapacity = n
	}
	if v, ok := os.LookupEnv("PORTALSYNC_RATE_REFILL"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PORTALSYNC_RATE_REFILL has invalid number %q: %w", v, err)
		}
		cfg.RateRefill = f
	}
	if v, ok := os.LookupEnv("PORTALSYNC_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORTALSYNC_REQUEST_TIMEOUT has invalid duration %q: %w", v, err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("PORTALSYNC_BASE_URL (or base_url in %s) is required", configFileName)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("base URL %q is invalid: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("base URL %q must use https", cfg.BaseURL)
	}
	if cfg.CredentialTTL <= 0 {
		return fmt.Errorf("credential TTL must be positive, got %s", cfg.CredentialTTL)
	}
	if cfg.RateCapacity < 1 {
		return fmt.Errorf("rate limit capacity must be at least 1, got %d", cfg.RateCapacity)
	}
	if cfg.RateRefill <= 0 {
		return fmt.Errorf("rate limit refill must be positive, got %v", cfg.RateRefill)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", cfg.RequestTimeout)
	}
	return nil
}
