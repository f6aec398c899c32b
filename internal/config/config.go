// Package config loads mesa settings from the environment and .env files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are read, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

type ServerOptions struct {
	Addr        string `env:"MESA_ADDR" envDefault:"127.0.0.1:8001"`
	DBPath      string `env:"MESA_DB_PATH"`
	CORSOrigins string `env:"CORS_ORIGINS"`
	MaxPageSize int    `env:"MAX_PAGE_SIZE" envDefault:"50"`
}

// Origins parses CORS_ORIGINS, which may be a JSON array or a comma list.
func (s *ServerOptions) Origins() []string {
	return ParseOrigins(s.CORSOrigins)
}

func (s *ServerOptions) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return fmt.Errorf("MESA_ADDR must not be empty")
	}
	if s.MaxPageSize < 1 {
		return fmt.Errorf("MAX_PAGE_SIZE must be positive, got %d", s.MaxPageSize)
	}
	return nil
}

type AuthOptions struct {
	SecretKey          string `env:"SECRET_KEY" envDefault:"change-me"`
	Algorithm          string `env:"ALGORITHM" envDefault:"HS256"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`
	LoginRateLimit     string `env:"LOGIN_RATE_LIMIT" envDefault:"5-M"`
	LockThreshold      int    `env:"LOGIN_LOCK_THRESHOLD" envDefault:"8"`
	LockWindowMinutes  int    `env:"LOGIN_LOCK_WINDOW_MIN" envDefault:"15"`
}

func (a *AuthOptions) TokenTTL() time.Duration {
	return time.Duration(a.AccessTokenMinutes) * time.Minute
}

func (a *AuthOptions) LockWindow() time.Duration {
	return time.Duration(a.LockWindowMinutes) * time.Minute
}

// InsecureSecret reports whether the signing key is still the shipped default.
func (a *AuthOptions) InsecureSecret() bool {
	return a.SecretKey == "change-me"
}

func (a *AuthOptions) Validate() error {
	if a.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must not be empty")
	}
	switch strings.ToUpper(a.Algorithm) {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("invalid ALGORITHM=%q (expected HS256|HS384|HS512)", a.Algorithm)
	}
	if a.AccessTokenMinutes < 1 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive, got %d", a.AccessTokenMinutes)
	}
	if a.LockThreshold < 1 {
		return fmt.Errorf("LOGIN_LOCK_THRESHOLD must be positive, got %d", a.LockThreshold)
	}
	if a.LockWindowMinutes < 1 {
		return fmt.Errorf("LOGIN_LOCK_WINDOW_MIN must be positive, got %d", a.LockWindowMinutes)
	}
	if strings.TrimSpace(a.LoginRateLimit) == "" {
		return fmt.Errorf("LOGIN_RATE_LIMIT must not be empty")
	}
	return nil
}

type RateLimitOptions struct {
	Storage  string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type TrashOptions struct {
	TTLDays       int           `env:"TRASH_TTL_DAYS" envDefault:"14"`
	SweepInterval time.Duration `env:"TRASH_SWEEP_INTERVAL" envDefault:"1h"`
}

func (t *TrashOptions) TTL() time.Duration {
	return time.Duration(t.TTLDays) * 24 * time.Hour
}

func (t *TrashOptions) Validate() error {
	if t.TTLDays < 1 {
		return fmt.Errorf("TRASH_TTL_DAYS must be positive, got %d", t.TTLDays)
	}
	if t.SweepInterval < 0 {
		return fmt.Errorf("TRASH_SWEEP_INTERVAL must not be negative, got %s", t.SweepInterval)
	}
	return nil
}

type LogOptions struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // text or json
}

func (l *LogOptions) Validate() error {
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT=%q (expected text|json)", l.Format)
	}
	return nil
}

type MetricsOptions struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// MongoOptions point at the database of the previous release, used by
// import-mongo.
type MongoOptions struct {
	URL string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	DB  string `env:"MONGO_DB" envDefault:"appdb"`
}

// ClientOptions configure the CLI commands that talk to a running server.
type ClientOptions struct {
	BaseURL   string `env:"MESA_URL" envDefault:"http://127.0.0.1:8001"`
	TokenPath string `env:"MESA_TOKEN_PATH"`
}

type Config struct {
	Server    ServerOptions
	Auth      AuthOptions
	RateLimit RateLimitOptions
	Trash     TrashOptions
	Log       LogOptions
	Metrics   MetricsOptions
	Mongo     MongoOptions
	Client    ClientOptions
}

// LoadEnv loads the env files that exist and returns how many were read.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads envFiles, parses the environment and validates every group.
func Load(envFiles []string) (*Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"auth", c.Auth.Validate},
		{"rate limit", c.RateLimit.Validate},
		{"trash", c.Trash.Validate},
		{"log", c.Log.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("%s configuration error: %w", v.name, err)
		}
	}
	return nil
}

// ParseOrigins accepts `["http://a","https://b"]` or `http://a,https://b`.
// Malformed JSON falls back to the comma split.
func ParseOrigins(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var list []any
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			out := make([]string, 0, len(list))
			for _, v := range list {
				if item := strings.TrimSpace(fmt.Sprint(v)); item != "" {
					out = append(out, item)
				}
			}
			return out
		}
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
