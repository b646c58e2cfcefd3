package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestLoadConfig_Defaults verifies an absent optional file yields the defaults.
func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.API.BaseURL != "https://api.tabloapp.com" || cfg.Monitor.DaysToScan != 3 || cfg.Monitor.Interval != time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Search.Latitude != "45.408153" || cfg.Survey.MinParticipants != 2 || cfg.Survey.MaxDistanceKm != 10 {
		t.Errorf("unexpected search defaults: %+v %+v", cfg.Search, cfg.Survey)
	}
	if cfg.Survey.AgeMin != "18" || cfg.Survey.AgeMax != "37" {
		t.Errorf("survey age range = %q-%q, want 18-37", cfg.Survey.AgeMin, cfg.Survey.AgeMax)
	}
	if cfg.Retry.Scan.Attempts != 3 || cfg.Retry.Notify.Attempts != 2 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true); err == nil {
		t.Error("expected error for missing required file")
	}
}

// TestLoadConfig_FileAndEnv verifies the file overrides defaults and env overrides the file.
func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://example.test
  auth_token: from-file
monitor:
  interval: 2m
  days_to_scan: 5
retry:
  scan:
    attempts: 4
processor:
  enabled: true
  rules:
    - table: "42"
      exclude: [participant_joined]
`)
	t.Setenv("TABLO_AUTH_TOKEN", "from-env")
	t.Setenv("MONITORING_INTERVAL_SECONDS", "30")
	t.Setenv("MAX_DISTANCE", "7.5")

	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.API.BaseURL != "https://example.test" || cfg.API.AuthToken != "from-env" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Monitor.Interval != 30*time.Second || cfg.Monitor.DaysToScan != 5 {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}
	if cfg.Retry.Scan.Attempts != 4 || cfg.Retry.Scan.Delay != time.Second {
		t.Errorf("scan retry = %+v, want attempts from file and default delay", cfg.Retry.Scan)
	}
	if cfg.Survey.MaxDistanceKm != 7.5 {
		t.Errorf("max distance = %v", cfg.Survey.MaxDistanceKm)
	}
	if len(cfg.Processor.Rules) != 1 || cfg.Processor.Rules[0].Table != "42" {
		t.Errorf("processor = %+v", cfg.Processor)
	}
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("DAYS_TO_SCAN", "three")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatal("expected error for non-numeric DAYS_TO_SCAN")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.API.AuthToken = "token"
		return cfg
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantErr  string
		warnings int
	}{
		{"valid", func(*Config) {}, "", 0},
		{"missing token", func(c *Config) { c.API.AuthToken = "" }, "auth token", 0},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, "base URL", 0},
		{"zero days", func(c *Config) { c.Monitor.DaysToScan = 0 }, "days to scan", 0},
		{"one day accepted", func(c *Config) { c.Monitor.DaysToScan = 1 }, "", 0},
		{"short interval warns", func(c *Config) { c.Monitor.Interval = 5 * time.Second }, "", 1},
		{"half telegram warns", func(c *Config) { c.Telegram.BotToken = "bot" }, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			warnings, err := cfg.Validate()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() failed: %v", err)
			}
			if len(warnings) != tt.warnings {
				t.Errorf("warnings = %v, want %d", warnings, tt.warnings)
			}
		})
	}
}
