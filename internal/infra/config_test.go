package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("QUEUE_CAPACITY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreDriverMemory)
	}
	if cfg.WorkerCount != 2 {
		t.Fatalf("WorkerCount = %d, want 2", cfg.WorkerCount)
	}
	if cfg.QueueCapacity != 16 {
		t.Fatalf("QueueCapacity = %d, want 16", cfg.QueueCapacity)
	}
	if cfg.TranscribeTimeout != 1800*time.Second {
		t.Fatalf("TranscribeTimeout = %v, want 30m", cfg.TranscribeTimeout)
	}
}

func TestLoadConfigPostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverPostgres)
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for postgres driver without DATABASE_URL")
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "etcd")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestLoadConfigRejectsNonPositiveWorkers(t *testing.T) {
	t.Setenv("WORKER_COUNT", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for WORKER_COUNT=0")
	}
}
