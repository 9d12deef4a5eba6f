package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Schedule.RunMinute != 3 {
		t.Errorf("RunMinute = %d, want 3", cfg.Schedule.RunMinute)
	}
	if cfg.Schedule.PollInterval != 20*time.Second {
		t.Errorf("PollInterval = %v, want 20s", cfg.Schedule.PollInterval)
	}
	if cfg.Fetch.Timeout != 20*time.Second {
		t.Errorf("Fetch.Timeout = %v, want 20s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.Workers != 1 {
		t.Errorf("Fetch.Workers = %d, want 1", cfg.Fetch.Workers)
	}
	if cfg.Storage.Backend != "mongo" || cfg.Storage.MongoDatabase != "Blizzard" {
		t.Errorf("Storage = %+v, want mongo/Blizzard", cfg.Storage)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0].Type != "eu" || cfg.Regions[1].Type != "us" {
		t.Errorf("Regions = %v, want [eu us]", cfg.Regions)
	}
	if cfg.Events.Mode != "none" {
		t.Errorf("Events.Mode = %q, want none", cfg.Events.Mode)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	regionsPath := filepath.Join(dir, "regions.yaml")
	if err := os.WriteFile(regionsPath, []byte(`regions:
  - type: kr
    host: https://kr.api.blizzard.com
    locale: ko_KR
`), 0644); err != nil {
		t.Fatalf("write regions: %v", err)
	}

	t.Setenv("SCHEDULE_RUN_MINUTE", "15")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("FETCH_WORKERS", "4")
	t.Setenv("STORAGE_BACKEND", "MEM")
	t.Setenv("SCHEDULE_TIMEZONE", "UTC")
	t.Setenv("REGIONS_FILE", regionsPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Schedule.RunMinute != 15 {
		t.Errorf("RunMinute = %d", cfg.Schedule.RunMinute)
	}
	if cfg.Fetch.Timeout != 5*time.Second || cfg.Fetch.Workers != 4 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Storage.Backend != "mem" {
		t.Errorf("Backend = %q, want mem", cfg.Storage.Backend)
	}
	if cfg.Schedule.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Schedule.Location)
	}
	if len(cfg.Regions) != 1 || cfg.Regions[0].Type != "kr" {
		t.Errorf("Regions = %v, want [kr]", cfg.Regions)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MONGO_DATABASE=FromDotEnv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv.Load sets the variable in the process; register cleanup.
	t.Setenv("MONGO_DATABASE", "")
	os.Unsetenv("MONGO_DATABASE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.MongoDatabase != "FromDotEnv" {
		t.Errorf("MongoDatabase = %q, want FromDotEnv", cfg.Storage.MongoDatabase)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SCHEDULE_RUN_MINUTE", "60"},
		{"SCHEDULE_RUN_MINUTE", "three"},
		{"FETCH_TIMEOUT", "0s"},
		{"FETCH_TIMEOUT", "soon"},
		{"FETCH_WORKERS", "0"},
		{"STORAGE_BACKEND", "redis"},
		{"EVENTS_MODE", "kafka"},
		{"CHECKPOINT_ENABLED", "maybe"},
		{"SCHEDULE_TIMEZONE", "Nowhere/Special"},
		{"REGIONS_FILE", "/does/not/exist.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
