package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Poll.Interval.Std() != 10*time.Second || cfg.Poll.BatchSize != 100 {
		t.Errorf("unexpected defaults: %+v", cfg.Poll)
	}
	if cfg.Frequency.MaxPerDay != 5 || cfg.Frequency.MaxPerWeek != 20 || cfg.Frequency.MaxPerMonth != 50 {
		t.Errorf("unexpected frequency defaults: %+v", cfg.Frequency)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	data := []byte("poll:\n  interval: 2s\n  batch_size: 10\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Poll.Interval.Std() != 2*time.Second || cfg.Poll.BatchSize != 10 {
		t.Errorf("file values not applied: %+v", cfg.Poll)
	}
	if cfg.Poll.Concurrency != 8 {
		t.Errorf("unset values should keep defaults, got %d", cfg.Poll.Concurrency)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("poll:\n  interval: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidateRejectsNonPositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("poll:\n  batch_size: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative batch size")
	}
}
