package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSONBackend(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
logLevel: debug
storeBackend: json
quotesDir: quotes
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendJSON || cfg.QuotesDir != "quotes" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadPostgresBackendRequiresURL(t *testing.T) {
	path := writeConfig(t, `
storeBackend: postgres
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error without databaseURL")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
storeBackend: cassandra
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadRequiresBackend(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error without storeBackend")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storeBackend: postgres
databaseURL: postgres://file/db
redisDB: 1
`)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Fatalf("databaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "localhost:6380" || cfg.RedisDB != 3 {
		t.Fatalf("redis = %q/%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.GeminiAPIKey != "env-key" {
		t.Fatalf("gemini key = %q", cfg.GeminiAPIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
