package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "ROOMBOOK_"

// FileEnv names the environment variable holding an optional YAML config file path.
const FileEnv = EnvPrefix + "CONFIG_FILE"

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the settings of the roombook service.
type Config struct {
	HTTPPort      int
	StoreDriver   string
	SQLiteDSN     string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CatalogTTL    time.Duration
	StoreTimeout  time.Duration
	CacheTimeout  time.Duration
	ReadRetries   int
	EventBuffer   int
	EventChannel  string
	LogLevel      string
	LogFormat     string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPPort:     8080,
		StoreDriver:  DriverSQLite,
		SQLiteDSN:    "roombook.db",
		CatalogTTL:   60 * time.Second,
		StoreTimeout: 5 * time.Second,
		CacheTimeout: time.Second,
		ReadRetries:  3,
		EventBuffer:  256,
		EventChannel: "roombook:events",
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// RedisEnabled reports whether a redis address was configured.
func (c Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

// Load reads configuration from the process environment, layered over the YAML
// file named by ROOMBOOK_CONFIG_FILE when set.
//
// Environment values win over file values, which win over defaults. Every
// malformed value is collected so that a single error names all of them.
func Load() (Config, error) {
	var file map[string]string
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		var err error
		if file, err = readFile(path); err != nil {
			return Config{}, err
		}
	}
	return resolve(func(key string) (string, bool) {
		if value, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
		value, ok := file[strings.ToLower(key)]
		return strings.TrimSpace(value), ok && strings.TrimSpace(value) != ""
	})
}

// readFile decodes a flat YAML mapping whose keys are the lower-cased
// configuration keys, e.g. "http_port: 9090".
func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	normalized := make(map[string]string, len(values))
	for key, value := range values {
		normalized[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return normalized, nil
}

type lookupFunc func(key string) (string, bool)

type parser struct {
	lookup  lookupFunc
	invalid []string
}

func (p *parser) str(key string, dst *string) {
	if value, ok := p.lookup(key); ok {
		*dst = value
	}
}

func (p *parser) oneOf(key string, dst *string, allowed ...string) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	value = strings.ToLower(value)
	for _, candidate := range allowed {
		if value == candidate {
			*dst = value
			return
		}
	}
	p.invalid = append(p.invalid, EnvPrefix+key)
}

func (p *parser) integer(key string, dst *int, min int) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < min {
		p.invalid = append(p.invalid, EnvPrefix+key)
		return
	}
	*dst = n
}

func (p *parser) duration(key string, dst *time.Duration) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, EnvPrefix+key)
		return
	}
	*dst = d
}

func resolve(lookup lookupFunc) (Config, error) {
	cfg := Default()
	p := &parser{lookup: lookup}

	p.integer("HTTP_PORT", &cfg.HTTPPort, 1)
	p.oneOf("STORE_DRIVER", &cfg.StoreDriver, DriverMemory, DriverSQLite, DriverPostgres)
	p.str("SQLITE_DSN", &cfg.SQLiteDSN)
	p.str("POSTGRES_DSN", &cfg.PostgresDSN)
	p.str("REDIS_ADDR", &cfg.RedisAddr)
	p.str("REDIS_PASSWORD", &cfg.RedisPassword)
	p.integer("REDIS_DB", &cfg.RedisDB, 0)
	p.duration("CATALOG_TTL", &cfg.CatalogTTL)
	p.duration("STORE_TIMEOUT", &cfg.StoreTimeout)
	p.duration("CACHE_TIMEOUT", &cfg.CacheTimeout)
	p.integer("READ_RETRIES", &cfg.ReadRetries, 0)
	p.integer("EVENT_BUFFER", &cfg.EventBuffer, 1)
	p.str("EVENT_CHANNEL", &cfg.EventChannel)
	p.oneOf("LOG_LEVEL", &cfg.LogLevel, "debug", "info", "warn", "error")
	p.oneOf("LOG_FORMAT", &cfg.LogFormat, "json", "text")

	if cfg.HTTPPort > 65535 {
		p.invalid = append(p.invalid, EnvPrefix+"HTTP_PORT")
	}

	var missing []string
	if cfg.StoreDriver == DriverPostgres && cfg.PostgresDSN == "" {
		missing = append(missing, EnvPrefix+"POSTGRES_DSN")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", ")))
	}
	if len(p.invalid) > 0 {
		sort.Strings(p.invalid)
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(p.invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
