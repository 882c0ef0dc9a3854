// Package config reads the server's settings from the environment.
//
// A .env file in the working directory is loaded first (godotenv) when
// present; real environment variables always win over it. The result is
// checked with go-playground/validator, so a bad value stops the process at
// startup instead of surfacing on the first request that needs it.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port   int    `validate:"min=1,max=65535"`
	DBPath string `validate:"required"`

	JWTSecret        string        `validate:"required,min=16"`
	TokenTTL         time.Duration `validate:"gt=0"`
	RememberTokenTTL time.Duration `validate:"gt=0"`
	BcryptCost       int           `validate:"min=4,max=31"`

	CORSOrigins []string `validate:"dive,required"`
	NATSURL     string   `validate:"omitempty,url"`

	GitHubClientID     string
	GitHubClientSecret string `validate:"required_with=GitHubClientID"`
	GitHubCallbackURL  string `validate:"omitempty,url"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	PopularWindow time.Duration `validate:"gt=0"`
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from any key→value source. Tests pass a map
// lookup instead of touching the real environment.
func FromLookup(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		Port:               r.int("PORT", 8080),
		DBPath:             r.str("DB_PATH", "data/csstoy.db"),
		JWTSecret:          r.str("JWT_SECRET", ""),
		TokenTTL:           r.duration("TOKEN_TTL", 24*time.Hour),
		RememberTokenTTL:   r.duration("REMEMBER_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:         r.int("BCRYPT_COST", 10),
		CORSOrigins:        r.list("CORS_ORIGINS", []string{"*"}),
		NATSURL:            r.str("NATS_URL", ""),
		GitHubClientID:     r.str("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: r.str("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  r.str("GITHUB_CALLBACK_URL", ""),
		LogLevel:           strings.ToLower(r.str("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(r.str("LOG_FORMAT", "text")),
		PopularWindow:      r.duration("POPULAR_WINDOW", 7*24*time.Hour),
	}
	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}

	if cfg.GitHubCallbackURL == "" && cfg.GitHubClientID != "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/github/callback", cfg.Port)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// GitHubEnabled reports whether GitHub login routes should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != ""
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// reader collects parse errors so one bad run reports every bad variable.
type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (r *reader) list(key string, def []string) []string {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
