package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Expected default storage backend memory, got %s", cfg.Storage.Backend)
	}
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Errorf("Expected default tick interval 1m, got %s", cfg.Scheduler.TickInterval)
	}
	if cfg.Inference.Timeout != 3*time.Second {
		t.Errorf("Expected default inference timeout 3s, got %s", cfg.Inference.Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("SCHEDULER_TICK_INTERVAL", "30s")
	t.Setenv("INFERENCE_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("Expected storage backend postgres, got %s", cfg.Storage.Backend)
	}
	if cfg.Scheduler.TickInterval != 30*time.Second {
		t.Errorf("Expected tick interval 30s, got %s", cfg.Scheduler.TickInterval)
	}
	if !cfg.Inference.Enabled {
		t.Error("Expected inference enabled")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		Database: "triage", SSLMode: "require",
	}

	want := "host=db port=5433 user=u password=p dbname=triage sslmode=require"
	if got := d.DSN(); got != want {
		t.Errorf("DSN mismatch:\n got %s\nwant %s", got, want)
	}
}
