package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("explicit missing config must fail")
	}

	// Implicit lookup tolerates an absent file.
	t.Chdir(t.TempDir())
	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MetricsAddr != ":9753" || cfg.LogLevel != "info" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadConfigParsesYAML(t *testing.T) {
	// loadConfig exports TABALA_* variables; pinning them here keeps the
	// process environment clean for other tests.
	t.Setenv("TABALA_STORAGE_DRIVER", "")
	t.Setenv("TABALA_SQLITE_PATH", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "tabala.yaml")
	body := "storage_driver: memory\nsqlite_path: /tmp/x.db\nmetrics_addr: \":9000\"\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageDriver != "memory" || cfg.SQLitePath != "/tmp/x.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MetricsAddr != ":9000" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestApplyEnvDoesNotClobberExisting(t *testing.T) {
	t.Setenv("TABALA_STORAGE_DRIVER", "postgres")
	t.Setenv("TABALA_SQLITE_PATH", "")
	applyEnv(&Config{StorageDriver: "memory", SQLitePath: "from-config.db"})

	if got := os.Getenv("TABALA_STORAGE_DRIVER"); got != "postgres" {
		t.Fatalf("exported driver overwritten: %q", got)
	}
	if got := os.Getenv("TABALA_SQLITE_PATH"); got != "from-config.db" {
		t.Fatalf("sqlite path not applied: %q", got)
	}
}
