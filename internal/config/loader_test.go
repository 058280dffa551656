package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/happysentences/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "happy.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(config.EnvOpenAIKey, "")
	t.Setenv(config.EnvDevBypass, "true")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if !cfg.Server.DevBypass {
		t.Error("HAPPY_DEV_BYPASS not applied by Load")
	}
	// The sample runs in production, so the bypass stays off.
	if cfg.Server.DevBypassEnabled() {
		t.Error("DevBypassEnabled() = true in production")
	}
}

func TestLoad_InvalidEnvBoolIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "happy.yaml")
	if err := os.WriteFile(path, []byte("server:\n  dev_bypass: true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(config.EnvDevBypass, "maybe")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Server.DevBypass {
		t.Error("invalid env value must leave dev_bypass unchanged")
	}
}
