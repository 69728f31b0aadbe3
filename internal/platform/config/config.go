// Package config assembles runtime configuration from defaults, an optional
// .env file and environment variables.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	domain "github.com/pimgrid/api/internal/domain"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultDBMaxConns   = 25
	defaultDBMinConns   = 2
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
	Locale   LocaleConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the optional PostgreSQL relation store. An empty
// DSN keeps everything in memory.
type DatabaseConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	// JWTSecret signs and verifies HS256 bearer tokens. Empty disables
	// authentication (local development only).
	JWTSecret string
}

// CatalogConfig carries catalog behaviour options.
type CatalogConfig struct {
	// BehaviorOnCatalogChange selects cascade or restrict handling of
	// category memberships invalidated by a catalog reassignment.
	BehaviorOnCatalogChange domain.CatalogChangePolicy
	// AllowNonLeafCategoryLinks permits direct links to non-leaf categories.
	AllowNonLeafCategoryLinks bool
}

// LocaleConfig carries the multilingual options.
type LocaleConfig struct {
	// InputLanguages is the ordered locale set globally-scoped multilingual
	// values expand into.
	InputLanguages []string
	// MultilangActive toggles locale expansion as a whole.
	MultilangActive bool
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided
// maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			DSN:      stringWithDefault(lookup, "API_DATABASE_DSN", ""),
			MaxConns: int32(intWithDefault(lookup, "API_DATABASE_MAX_CONNS", defaultDBMaxConns)),
			MinConns: int32(intWithDefault(lookup, "API_DATABASE_MIN_CONNS", defaultDBMinConns)),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
		},
		Catalog: CatalogConfig{
			BehaviorOnCatalogChange:   domain.CatalogChangePolicy(strings.ToLower(stringWithDefault(lookup, "CATALOG_BEHAVIOR_ON_CATALOG_CHANGE", string(domain.CatalogChangeCascade)))),
			AllowNonLeafCategoryLinks: boolWithDefault(lookup, "CATALOG_ALLOW_NON_LEAF_CATEGORY_LINKS", false),
		},
		Locale: LocaleConfig{
			InputLanguages:  csvWithDefault(lookup, "LOCALE_INPUT_LANGUAGES"),
			MultilangActive: boolWithDefault(lookup, "LOCALE_MULTILANG_ACTIVE", true),
		},
	}

	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	var invalid []string

	switch cfg.Catalog.BehaviorOnCatalogChange {
	case domain.CatalogChangeCascade, domain.CatalogChangeRestrict:
	default:
		invalid = append(invalid, "CATALOG_BEHAVIOR_ON_CATALOG_CHANGE")
	}

	// Locale codes are canonicalised up front so the core only ever sees
	// well-formed tags.
	normalized := make([]string, 0, len(cfg.Locale.InputLanguages))
	for _, code := range cfg.Locale.InputLanguages {
		canonical, err := domain.NormalizeLocale(code)
		if err != nil {
			invalid = append(invalid, fmt.Sprintf("LOCALE_INPUT_LANGUAGES[%s]", code))
			continue
		}
		normalized = append(normalized, canonical)
	}
	cfg.Locale.InputLanguages = normalized

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
