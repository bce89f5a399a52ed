package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9090"
  read_timeout: 5s
database:
  url: postgres://localhost/listings
redis:
  url: redis://localhost:6379/0
  cache_ttl: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("read_timeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Redis.CacheTTL != time.Minute {
		t.Errorf("cache_ttl = %v, want 1m", cfg.Redis.CacheTTL)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://db.internal/listings")
	path := writeConfigFile(t, `
database:
  url: ${TEST_DB_URL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Database.URL != "postgres://db.internal/listings" {
		t.Errorf("url = %q, env var not expanded", cfg.Database.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoadAndValidate_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("request_timeout = %v, want 30s", cfg.Server.RequestTimeout)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown_timeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadAndValidate_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "postgres://override/db")
	path := writeConfigFile(t, `
server:
  port: "9090"
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "3000" {
		t.Errorf("port = %q, env override should win", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://override/db" {
		t.Errorf("database url = %q, env override should win", cfg.Database.URL)
	}
}

func TestValidate_RedisRequiresDatabase(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  url: redis://localhost:6379/0
`)

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "database.url") {
		t.Errorf("expected redis-requires-database error, got %v", err)
	}
}
