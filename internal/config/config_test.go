package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"MacroTracker/internal/series"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.Workers != 5 {
		t.Errorf("worker pool default: got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.ProjectionWorkers != 3 {
		t.Errorf("projection workers default: got %d", cfg.Sync.ProjectionWorkers)
	}
	if cfg.Sync.PerSourceTimeout != 30*time.Second {
		t.Errorf("per-source timeout default: got %s", cfg.Sync.PerSourceTimeout)
	}
	if cfg.Sync.EpochDefault != "2022-01-01" {
		t.Errorf("epoch default: got %s", cfg.Sync.EpochDefault)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("backend default: got %s", cfg.Store.Backend)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
sync:
  worker_pool_size: 2
sources:
  index_rate_url: https://example.test/series/30
store:
  backend: noop
`)
	t.Setenv("SYNC_WORKERS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.Workers != 7 {
		t.Errorf("env override should win: got %d", cfg.Sync.Workers)
	}
	if cfg.Sources.IndexRateURL != "https://example.test/series/30" {
		t.Errorf("got %s", cfg.Sources.IndexRateURL)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		cfg.Sources.IndexRateURL = "https://example.test/series/30"
		cfg.Store.Backend = "noop"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Epoch != series.NewDate(2022, time.January, 1) {
		t.Errorf("parsed epoch: got %s", cfg.Epoch)
	}

	cfg = base()
	cfg.Sources.IndexRateURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing index rate URL")
	}

	cfg = base()
	cfg.Store.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg = base()
	cfg.Store.Backend = "sheets"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sheets backend without spreadsheet id")
	}

	cfg = base()
	cfg.Sync.EpochDefault = "01/01/2022"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed epoch")
	}

	cfg = base()
	cfg.Sources.TLSVerifyExceptions = []string{"https://host/path"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for URL in tls_verify_exceptions")
	}
}
