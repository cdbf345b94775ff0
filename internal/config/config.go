// Package config reads LearnMade's settings from the environment.
//
// A .env file in the working directory is loaded first when present;
// variables already set in the process environment always win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	DBPath    string
	Auth      AuthConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Tracing   TracingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            int
	PublicURL       string
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	SessionTTL         time.Duration
	AdminEmail         string
	AdminPassword      string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

type EmailConfig struct {
	APIKey    string
	BaseURL   string
	From      string
	Timeout   time.Duration
	BatchSize int
}

type RateLimitConfig struct {
	// RedisURL empty disables rate limiting.
	RedisURL string
	Max      int
	Window   time.Duration
}

type StorageConfig struct {
	// Bucket empty disables POST /upload.
	Bucket         string
	Prefix         string
	MaxUploadBytes int64
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if any) and the environment. Malformed numeric or
// duration values are reported together; Load does not call Validate.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	r := &envReader{}
	cfg := &Config{
		Server: ServerConfig{
			Port:            r.getIntEnv("PORT", 8080),
			PublicURL:       strings.TrimRight(r.getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
			ShutdownTimeout: r.getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		DBPath: r.getEnv("DB_PATH", "data/learnmade.db"),
		Auth: AuthConfig{
			JWTSecret:          r.getEnv("JWT_SECRET", ""),
			SessionTTL:         r.getDurationEnv("SESSION_TTL", time.Hour),
			AdminEmail:         strings.ToLower(r.getEnv("ADMIN_EMAIL", "")),
			AdminPassword:      r.getEnv("ADMIN_PASSWORD", ""),
			GitHubClientID:     r.getEnv("GITHUB_CLIENT_ID", ""),
			GitHubClientSecret: r.getEnv("GITHUB_CLIENT_SECRET", ""),
			GitHubCallbackURL:  r.getEnv("GITHUB_CALLBACK_URL", ""),
		},
		Email: EmailConfig{
			APIKey:    r.getEnv("EMAIL_API_KEY", ""),
			BaseURL:   r.getEnv("EMAIL_BASE_URL", "https://api.resend.com"),
			From:      r.getEnv("FROM_EMAIL", "LearnMade <onboarding@resend.dev>"),
			Timeout:   r.getDurationEnv("EMAIL_TIMEOUT", 15*time.Second),
			BatchSize: r.getIntEnv("BROADCAST_BATCH_SIZE", 50),
		},
		RateLimit: RateLimitConfig{
			RedisURL: r.getEnv("REDIS_URL", ""),
			Max:      r.getIntEnv("RATE_LIMIT_MAX", 10),
			Window:   r.getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		Storage: StorageConfig{
			Bucket:         r.getEnv("GCS_BUCKET", ""),
			Prefix:         r.getEnv("GCS_PREFIX", "learnmade-courses"),
			MaxUploadBytes: int64(r.getIntEnv("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Tracing: TracingConfig{
			Enabled:     r.getBoolEnv("OTEL_ENABLED", false),
			Endpoint:    r.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    r.getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName: r.getEnv("OTEL_SERVICE_NAME", "learnmade"),
			SampleRatio: r.getFloatEnv("OTEL_SAMPLER_RATIO", 1),
		},
		Log: LogConfig{
			Level:  strings.ToLower(r.getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(r.getEnv("LOG_FORMAT", "text")),
		},
	}

	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = cfg.Server.PublicURL + "/auth/github/callback"
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be set and at least 16 characters"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Email.BatchSize < 1 || c.Email.BatchSize > 100 {
		errs = append(errs, fmt.Errorf("BROADCAST_BATCH_SIZE must be between 1 and 100, got %d", c.Email.BatchSize))
	}
	if c.RateLimit.RedisURL != "" && c.RateLimit.Max < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be at least 1"))
	}
	if c.Storage.MaxUploadBytes < 1 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if (c.Auth.GitHubClientID == "") != (c.Auth.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// GitHubEnabled reports whether the OAuth routes should be registered.
func (c *Config) GitHubEnabled() bool {
	return c.Auth.GitHubClientID != "" && c.Auth.GitHubClientSecret != ""
}

// SecureCookies is true when the site is served over HTTPS.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.PublicURL, "https://")
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// envReader collects parse errors so Load can report every bad key at once.
type envReader struct {
	errs []error
}

func (r *envReader) getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func (r *envReader) getIntEnv(key string, defaultValue int) int {
	raw := r.getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return defaultValue
	}
	return v
}

func (r *envReader) getFloatEnv(key string, defaultValue float64) float64 {
	raw := r.getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return defaultValue
	}
	return v
}

func (r *envReader) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := r.getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return defaultValue
	}
	return v
}

func (r *envReader) getBoolEnv(key string, defaultValue bool) bool {
	raw := strings.ToLower(r.getEnv(key, ""))
	switch raw {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return defaultValue
	}
}
