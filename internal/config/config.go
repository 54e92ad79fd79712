// Package config loads and validates application configuration from YAML files
// and environment variables. Secrets are resolved from the environment exactly
// once at load time; handlers never consult the environment per request.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	BaaS          BaaSConfig          `yaml:"baas"`
	Board         BoardConfig         `yaml:"board"`
	Push          PushConfig          `yaml:"push"`
	Session       SessionConfig       `yaml:"session"`
	Reporter      ReporterConfig      `yaml:"reporter"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes how callers are authenticated.
//
// Mode "remote" resolves the principal by presenting the caller's bearer token
// to the BaaS auth endpoint on every request. Mode "jwt" verifies the token
// locally against the identity provider's JWKS; the BaaS is then only
// consulted for delegated writes.
type IdentityConfig struct {
	Mode         string        `yaml:"mode"`
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
	// AdminEmails grants the admin role in jwt mode, where tokens carry no
	// application role claim.
	AdminEmails []string `yaml:"admin_emails"`
}

// BaaSConfig describes the backend-as-a-service connection.
type BaaSConfig struct {
	BaseURL          string        `yaml:"base_url"`
	AppID            string        `yaml:"app_id"`
	FunctionsVersion string        `yaml:"functions_version"`
	Timeout          time.Duration `yaml:"timeout"`
	// ServiceRoleKeyEnv names the environment variable holding the elevated
	// credential used for privileged writes. The resolved value is kept in
	// ServiceRoleKey and never re-read.
	ServiceRoleKeyEnv string `yaml:"service_role_key_env"`
	ServiceRoleKey    string `yaml:"-"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// BoardConfig describes the social image-board API connection.
type BoardConfig struct {
	BaseURL string `yaml:"base_url"`
	// BoardID is the default board that imports read from and shares post to.
	BoardID        string        `yaml:"board_id"`
	Timeout        time.Duration `yaml:"timeout"`
	AccessTokenEnv string        `yaml:"access_token_env"`
	AccessToken    string        `yaml:"-"`
}

// PushConfig describes the push-dispatch capability.
type PushConfig struct {
	// DispatchFunction is the BaaS function invoked by name to send a push
	// notification.
	DispatchFunction string `yaml:"dispatch_function"`
}

// SessionConfig describes session parameter resolution and persistence.
type SessionConfig struct {
	// Namespace prefixes derived storage keys, e.g. "base44" yields
	// base44_access_token.
	Namespace string `yaml:"namespace"`
	// BootURL is the launch URL the host hands the gateway; session
	// parameters are resolved from its query string at startup.
	BootURL string `yaml:"boot_url"`
	// DefaultAppID and DefaultServerURL are the compiled-in fallbacks used
	// when neither the boot URL nor the store supplies a value.
	DefaultAppID     string             `yaml:"default_app_id"`
	DefaultServerURL string             `yaml:"default_server_url"`
	Store            SessionStoreConfig `yaml:"store"`
}

// SessionStoreConfig describes session parameter persistence settings.
type SessionStoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ReporterConfig describes host-frame error reporting.
type ReporterConfig struct {
	// HostURL is the parent-frame callback that receives error reports.
	// Empty means the gateway is not embedded and reporting is disabled.
	HostURL string        `yaml:"host_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CircuitBreakerConfig describes circuit breaker settings for upstream calls.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RetryConfig describes retry settings for upstream calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	IdempotentOnly    bool          `yaml:"idempotent_only"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			Mode:         "remote",
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
		},
		BaaS: BaaSConfig{
			Timeout:           10 * time.Second,
			ServiceRoleKeyEnv: "SHELFGATE_SERVICE_ROLE_KEY",
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       2,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
				IdempotentOnly:    true,
			},
		},
		Board: BoardConfig{
			BaseURL:        "https://api.pinterest.com/v5",
			Timeout:        10 * time.Second,
			AccessTokenEnv: "SHELFGATE_BOARD_ACCESS_TOKEN",
		},
		Push: PushConfig{
			DispatchFunction: "sendPushNotification",
		},
		Session: SessionConfig{
			Namespace: "base44",
			Store: SessionStoreConfig{
				Driver:          "memory",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Reporter: ReporterConfig{
			Timeout: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// resolves secrets, and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid. Secret
// presence is deliberately not enforced here: a missing board token is
// surfaced by the readiness endpoint and by the handlers that need it, so the
// unaffected handlers keep working.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.BaaS.BaseURL == "" {
		errs = append(errs, "baas.base_url is required")
	}
	if c.BaaS.AppID == "" && c.Session.DefaultAppID == "" {
		errs = append(errs, "baas.app_id or session.default_app_id is required")
	}
	switch c.Identity.Mode {
	case "remote":
	case "jwt":
		if c.Identity.Issuer == "" {
			errs = append(errs, "identity.issuer is required in jwt mode")
		}
		if c.Identity.JWKSURL == "" {
			errs = append(errs, "identity.jwks_url is required in jwt mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("identity.mode must be remote or jwt, got %q", c.Identity.Mode))
	}
	switch c.Session.Store.Driver {
	case "memory", "postgres", "":
	default:
		errs = append(errs, fmt.Sprintf("session.store.driver must be memory or postgres, got %q", c.Session.Store.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// resolveSecrets reads secret values from the environment variables named in
// the configuration. Called once at load.
func resolveSecrets(cfg *Config) {
	if cfg.Board.AccessTokenEnv != "" {
		cfg.Board.AccessToken = os.Getenv(cfg.Board.AccessTokenEnv)
	}
	if cfg.BaaS.ServiceRoleKeyEnv != "" {
		cfg.BaaS.ServiceRoleKey = os.Getenv(cfg.BaaS.ServiceRoleKeyEnv)
	}
}

// applyEnvOverrides reads SHELFGATE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHELFGATE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SHELFGATE_BAAS_BASE_URL"); v != "" {
		cfg.BaaS.BaseURL = v
	}
	if v := os.Getenv("SHELFGATE_BAAS_APP_ID"); v != "" {
		cfg.BaaS.AppID = v
	}
	if v := os.Getenv("SHELFGATE_IDENTITY_MODE"); v != "" {
		cfg.Identity.Mode = v
	}
	if v := os.Getenv("SHELFGATE_SESSION_BOOT_URL"); v != "" {
		cfg.Session.BootURL = v
	}
	if v := os.Getenv("SHELFGATE_REPORTER_HOST_URL"); v != "" {
		cfg.Reporter.HostURL = v
	}
	if v := os.Getenv("SHELFGATE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
