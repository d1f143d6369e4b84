package library

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "library.db" {
		t.Fatalf("default db path: %s", cfg.DBPath)
	}
	if cfg.Policy != DefaultPolicy() {
		t.Fatalf("default policy: %+v", cfg.Policy)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yaml")
	data := []byte("db_path: /tmp/lib.db\npolicy:\n  loan_days: 7\n  max_borrow: 5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/lib.db" {
		t.Fatalf("db path: %s", cfg.DBPath)
	}
	if cfg.Policy.LoanDays != 7 || cfg.Policy.MaxBorrow != 5 {
		t.Fatalf("policy from file: %+v", cfg.Policy)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Policy.FinePerDay != DefaultPolicy().FinePerDay {
		t.Fatalf("fine per day should default: %d", cfg.Policy.FinePerDay)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("LIBRARY_DB", "env.db")
	t.Setenv("LIBRARY_LOAN_DAYS", "21")
	t.Setenv("LIBRARY_FINE_PER_DAY", "3")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "env.db" {
		t.Fatalf("db path: %s", cfg.DBPath)
	}
	if cfg.Policy.LoanDays != 21 || cfg.Policy.FinePerDay != 3 {
		t.Fatalf("policy from env: %+v", cfg.Policy)
	}
	if cfg.Policy.MaxBorrow != DefaultPolicy().MaxBorrow {
		t.Fatalf("max borrow should default: %d", cfg.Policy.MaxBorrow)
	}
}

func TestLoadConfigRejectsBadPolicy(t *testing.T) {
	t.Setenv("LIBRARY_MAX_BORROW", "0")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected invalid policy error")
	}
}
