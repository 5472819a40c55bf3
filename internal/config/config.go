// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration for the authorization and
// audit core.
type Config struct {
	MetaDBPath string // path to the SQLite metadata file
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Query-backed macro execution controls.
	MacroTimeout    time.Duration // per-execution timeout (default 5s)
	MacroRateRPS    float64       // sustained macro queries per second (0 = unlimited)
	MacroRateBurst  int           // burst capacity (default 2*RPS, min 1)
	DeclarativeDir  string        // directory of declarative seed files (optional)
	AuditActorClaim string        // identity field used as actor display name (default "email")

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:      os.Getenv("META_DB_PATH"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		Env:             os.Getenv("ENV"),
		DeclarativeDir:  os.Getenv("DECLARATIVE_DIR"),
		AuditActorClaim: os.Getenv("AUDIT_ACTOR_CLAIM"),
	}

	if v := os.Getenv("MACRO_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MACRO_TIMEOUT %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("MACRO_TIMEOUT must be positive, got %q", v)
		}
		cfg.MacroTimeout = d
	}
	if v := os.Getenv("MACRO_RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid MACRO_RATE_RPS %q", v)
		}
		cfg.MacroRateRPS = f
	}
	if v := os.Getenv("MACRO_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid MACRO_RATE_BURST %q", v)
		}
		cfg.MacroRateBurst = n
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "basecore_meta.sqlite"
		cfg.Warnings = append(cfg.Warnings, "META_DB_PATH not set — using basecore_meta.sqlite in the working directory")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MacroTimeout == 0 {
		cfg.MacroTimeout = 5 * time.Second
	}
	if cfg.MacroRateRPS > 0 && cfg.MacroRateBurst == 0 {
		cfg.MacroRateBurst = int(2 * cfg.MacroRateRPS)
		if cfg.MacroRateBurst < 1 {
			cfg.MacroRateBurst = 1
		}
	}
	if cfg.AuditActorClaim == "" {
		cfg.AuditActorClaim = "email"
	}

	// Production mode: in-memory and relative-path stores are suspect.
	if cfg.IsProduction() && strings.Contains(cfg.MetaDBPath, ":memory:") {
		return nil, fmt.Errorf("META_DB_PATH must be a file path in production (ENV=production)")
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
