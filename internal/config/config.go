package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minSessionSecretLen = 32

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	BackendURL            string        `mapstructure:"BACKEND_URL"`
	BackendTimeout        time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	SessionSecret         string        `mapstructure:"SESSION_SECRET"`
	SessionTTL            time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookieSecure   bool          `mapstructure:"SESSION_COOKIE_SECURE"`
	TokenEncryptionKey    string        `mapstructure:"TOKEN_ENCRYPTION_KEY"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout        time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit             string        `mapstructure:"BODY_LIMIT"`
	PaddleEnvironment     string        `mapstructure:"PADDLE_ENVIRONMENT"`
	PaddleClientToken     string        `mapstructure:"PADDLE_CLIENT_TOKEN"`
	GoogleClientID        string        `mapstructure:"GOOGLE_CLIENT_ID"`
	EntitlementFailClosed bool          `mapstructure:"ENTITLEMENT_FAIL_CLOSED"`
	ClinicTimezone        string        `mapstructure:"CLINIC_TIMEZONE"`
	TLSEnabled            bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile           string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile            string        `mapstructure:"TLS_KEY_FILE"`
}

var envKeys = []string{
	"PORT", "ENV", "BACKEND_URL", "BACKEND_TIMEOUT",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SESSION_SECRET", "SESSION_TTL", "SESSION_COOKIE_SECURE", "TOKEN_ENCRYPTION_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "BODY_LIMIT",
	"PADDLE_ENVIRONMENT", "PADDLE_CLIENT_TOKEN", "GOOGLE_CLIENT_ID",
	"ENTITLEMENT_FAIL_CLOSED", "CLINIC_TIMEZONE",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("BACKEND_TIMEOUT", "15s")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("PADDLE_ENVIRONMENT", "sandbox")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	if cfg.IsDev() {
		log.Println("WARNING: console is running in DEVELOPMENT mode (ENV=development).")
		if cfg.SessionSecret == "" {
			log.Println("WARNING: SESSION_SECRET is unset; sessions are signed with a development key.")
		}
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the console is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// IsSandbox reports whether the payment processor runs against its sandbox.
func (c *Config) IsSandbox() bool {
	return c.PaddleEnvironment != "production"
}

// SessionKey returns the key used to sign session cookies. Development
// falls back to a fixed key so a local console works without setup.
func (c *Config) SessionKey() []byte {
	if c.SessionSecret == "" && c.IsDev() {
		return []byte("clinic-console-development-only-key!")
	}
	return []byte(c.SessionSecret)
}

// TokenKey decodes TOKEN_ENCRYPTION_KEY. It returns nil, nil when unset.
func (c *Config) TokenKey() ([]byte, error) {
	if c.TokenEncryptionKey == "" {
		return nil, nil
	}
	keyBytes, err := hex.DecodeString(c.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
	}
	return keyBytes, nil
}

// Location resolves CLINIC_TIMEZONE; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}

	switch c.PaddleEnvironment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("PADDLE_ENVIRONMENT must be \"sandbox\" or \"production\", got %q", c.PaddleEnvironment)
	}

	if !c.IsDev() && len(c.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes outside development", minSessionSecretLen)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	// Tokens persisted in Postgres are sealed with this key.
	if c.IsProduction() && c.DatabaseURL != "" && c.TokenEncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required in production when DATABASE_URL is set")
	}
	if c.TokenEncryptionKey != "" {
		if _, err := c.TokenKey(); err != nil {
			return err
		}
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
