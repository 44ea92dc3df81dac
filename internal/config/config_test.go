package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Platform.Name != "Webnovel" {
		t.Errorf("expected platform 'Webnovel', got %q", cfg.Platform.Name)
	}
	if cfg.Scrape.RequestsPerMinute != 40 {
		t.Errorf("expected 40 requests per minute, got %d", cfg.Scrape.RequestsPerMinute)
	}
	if len(cfg.Session.Markers) == 0 {
		t.Error("expected challenge markers to be populated")
	}
	if cfg.Batch.CooldownSeconds != 10 {
		t.Errorf("expected cooldown 10, got %d", cfg.Batch.CooldownSeconds)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
scrape:
  chapter_workers: 5
  requests_per_minute: 20
session:
  max_wait_seconds: 90
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Scrape.ChapterWorkers != 5 {
		t.Errorf("expected 5 chapter workers, got %d", cfg.Scrape.ChapterWorkers)
	}
	if cfg.Scrape.RequestsPerMinute != 20 {
		t.Errorf("expected 20 requests per minute, got %d", cfg.Scrape.RequestsPerMinute)
	}
	if cfg.Session.MaxWaitSeconds != 90 {
		t.Errorf("expected max wait 90, got %d", cfg.Session.MaxWaitSeconds)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Session.PollSeconds != 3 {
		t.Errorf("expected default poll interval, got %d", cfg.Session.PollSeconds)
	}
	if cfg.Platform.Name != "Webnovel" {
		t.Errorf("expected default platform name, got %q", cfg.Platform.Name)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Platform.URL == "" {
		t.Error("expected platform url to be populated from file")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.JSONDir() != filepath.Join("/custom/path", "json") {
		t.Errorf("unexpected json dir %q", cfg.JSONDir())
	}
}
