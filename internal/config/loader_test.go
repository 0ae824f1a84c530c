package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"HTTP_PORT", "STORE_DRIVER", "SQLITE_DSN", "POSTGRES_DSN",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"CATALOG_TTL", "STORE_TIMEOUT", "CACHE_TIMEOUT", "READ_RETRIES",
	"EVENT_BUFFER", "EVENT_CHANNEL", "LOG_LEVEL", "LOG_FORMAT", "CONFIG_FILE",
}

// clearEnv blanks every roombook variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(EnvPrefix+key, "")
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roombook.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg != Default() {
			t.Fatalf("expected defaults, got %+v", cfg)
		}
		if cfg.RedisEnabled() {
			t.Fatalf("redis should be disabled without an address")
		}
	})

	t.Run("reads overrides from the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOK_HTTP_PORT", "9090")
		t.Setenv("ROOMBOOK_STORE_DRIVER", "MEMORY")
		t.Setenv("ROOMBOOK_REDIS_ADDR", "localhost:6379")
		t.Setenv("ROOMBOOK_REDIS_DB", "2")
		t.Setenv("ROOMBOOK_CATALOG_TTL", "90s")
		t.Setenv("ROOMBOOK_READ_RETRIES", "0")
		t.Setenv("ROOMBOOK_LOG_FORMAT", "text")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.StoreDriver != DriverMemory {
			t.Fatalf("expected memory driver, got %q", cfg.StoreDriver)
		}
		if !cfg.RedisEnabled() || cfg.RedisDB != 2 {
			t.Fatalf("unexpected redis settings: %+v", cfg)
		}
		if cfg.CatalogTTL != 90*time.Second {
			t.Fatalf("expected 90s TTL, got %s", cfg.CatalogTTL)
		}
		if cfg.ReadRetries != 0 {
			t.Fatalf("expected retries to be disabled, got %d", cfg.ReadRetries)
		}
		if cfg.LogFormat != "text" {
			t.Fatalf("expected text log format, got %q", cfg.LogFormat)
		}
	})

	t.Run("reports every invalid value together", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOK_HTTP_PORT", "abc")
		t.Setenv("ROOMBOOK_CATALOG_TTL", "-1s")
		t.Setenv("ROOMBOOK_STORE_DRIVER", "mysql")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "invalid configuration values: ROOMBOOK_CATALOG_TTL, ROOMBOOK_HTTP_PORT, ROOMBOOK_STORE_DRIVER"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("requires a dsn for postgres", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOK_STORE_DRIVER", "postgres")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "ROOMBOOK_POSTGRES_DSN") {
			t.Fatalf("expected missing dsn error, got %v", err)
		}
	})

	t.Run("rejects out of range ports", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOK_HTTP_PORT", "70000")

		if _, err := Load(); err == nil {
			t.Fatalf("expected error for port above 65535")
		}
	})
}

func TestLoader_ConfigFile(t *testing.T) {
	t.Run("file values override defaults and env overrides the file", func(t *testing.T) {
		clearEnv(t)
		path := writeConfigFile(t, strings.Join([]string{
			"http_port: 7070",
			"store_driver: postgres",
			"postgres_dsn: postgres://localhost/roombook",
			"event_buffer: 32",
			"LOG_LEVEL: debug",
		}, "\n"))
		t.Setenv(FileEnv, path)
		t.Setenv("ROOMBOOK_EVENT_BUFFER", "64")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 7070 {
			t.Fatalf("expected file port 7070, got %d", cfg.HTTPPort)
		}
		if cfg.StoreDriver != DriverPostgres || cfg.PostgresDSN != "postgres://localhost/roombook" {
			t.Fatalf("unexpected store settings: %+v", cfg)
		}
		if cfg.EventBuffer != 64 {
			t.Fatalf("expected env to win with 64, got %d", cfg.EventBuffer)
		}
		if cfg.LogLevel != "debug" {
			t.Fatalf("expected upper-case file keys to be accepted, got %q", cfg.LogLevel)
		}
	})

	t.Run("invalid file values are reported", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(FileEnv, writeConfigFile(t, "store_timeout: soon\n"))

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "ROOMBOOK_STORE_TIMEOUT") {
			t.Fatalf("expected store timeout error, got %v", err)
		}
	})

	t.Run("missing file fails", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

		if _, err := Load(); err == nil {
			t.Fatalf("expected error for missing config file")
		}
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(FileEnv, writeConfigFile(t, "http_port: [1, 2\n"))

		if _, err := Load(); err == nil {
			t.Fatalf("expected parse error")
		}
	})
}
