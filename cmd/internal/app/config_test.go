package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"COTERIE_HTTP_ADDR",
		"COTERIE_LOG_LEVEL",
		"COTERIE_DATABASE_URL",
		"COTERIE_DB_INIT_SCHEMA",
		"COTERIE_REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel=%q", cfg.LogLevel)
	}
	if cfg.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("ReadHeaderTimeout=%v", cfg.ReadHeaderTimeout)
	}
	if cfg.DBMaxConns != 10 {
		t.Fatalf("DBMaxConns=%d", cfg.DBMaxConns)
	}
	if cfg.InitSchema || cfg.ReadinessRequireDB || cfg.RequireTokenHMAC {
		t.Fatalf("boolean defaults should be false: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("COTERIE_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("COTERIE_LOG_LEVEL", "debug")
	t.Setenv("COTERIE_HTTP_READ_TIMEOUT", "30s")
	t.Setenv("COTERIE_DB_MAX_CONNS", "25")
	t.Setenv("COTERIE_DB_INIT_SCHEMA", "true")
	t.Setenv("COTERIE_REQUIRE_TOKEN_HMAC", "1")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel=%q", cfg.LogLevel)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("ReadTimeout=%v", cfg.ReadTimeout)
	}
	if cfg.DBMaxConns != 25 {
		t.Fatalf("DBMaxConns=%d", cfg.DBMaxConns)
	}
	if !cfg.InitSchema {
		t.Fatalf("InitSchema should be true")
	}
	if !cfg.RequireTokenHMAC {
		t.Fatalf("RequireTokenHMAC should be true")
	}
}
