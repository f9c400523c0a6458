package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"EXTRACTION_PROVIDER", "EXTRACTION_MAX_RETRIES", "EXTRACTION_TIMEOUT_SECONDS",
		"DISPATCHER_WORKERS", "DISPATCHER_QUEUE_SIZE", "HTTP_ADDR",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.ExtractionProvider != "local" {
		t.Errorf("ExtractionProvider = %q, want local", cfg.ExtractionProvider)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.ExtractionTimeout != 150*time.Second {
		t.Errorf("ExtractionTimeout = %v, want 150s", cfg.ExtractionTimeout)
	}
	if cfg.DispatcherWorkers != 4 || cfg.DispatcherQueueSize != 64 {
		t.Errorf("dispatcher = %d/%d, want 4/64", cfg.DispatcherWorkers, cfg.DispatcherQueueSize)
	}
}

func TestLoadZeroMaxRetries(t *testing.T) {
	// Zero means "call the provider exactly once"; it must not be replaced
	// by the default.
	t.Setenv("EXTRACTION_MAX_RETRIES", "0")
	if got := Load().MaxRetries; got != 0 {
		t.Errorf("MaxRetries = %d, want 0", got)
	}
}

func TestLoadMaxRetriesRejectsNegativeAndGarbage(t *testing.T) {
	for _, raw := range []string{"-1", "two"} {
		t.Setenv("EXTRACTION_MAX_RETRIES", raw)
		if got := Load().MaxRetries; got != 2 {
			t.Errorf("MaxRetries(%q) = %d, want default 2", raw, got)
		}
	}
}

func TestLoadSizesRejectZero(t *testing.T) {
	// A zero-sized pool or queue is a misconfiguration, not a setting.
	t.Setenv("DISPATCHER_WORKERS", "0")
	t.Setenv("DISPATCHER_QUEUE_SIZE", "-5")
	cfg := Load()
	if cfg.DispatcherWorkers != 4 {
		t.Errorf("DispatcherWorkers = %d, want default 4", cfg.DispatcherWorkers)
	}
	if cfg.DispatcherQueueSize != 64 {
		t.Errorf("DispatcherQueueSize = %d, want default 64", cfg.DispatcherQueueSize)
	}
}
