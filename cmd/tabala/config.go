package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries the CLI settings. Resolution order is yaml file, then
// .env, then process environment; later sources win.
type Config struct {
	StorageDriver string `yaml:"storage_driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Region      string `yaml:"s3_region"`
	S3Endpoint    string `yaml:"s3_endpoint"`
	S3PathStyle   bool   `yaml:"s3_path_style"`
	PrefsPath     string `yaml:"prefs_path"`
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`
}

const defaultConfigFile = "tabala.yaml"

func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		PrefsPath:   defaultPrefsPath(),
		MetricsAddr: ":9753",
		LogLevel:    "info",
	}

	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; the environment decides.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	_ = godotenv.Load() // ignore a missing .env

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv copies the config into the TABALA_* variables core.OpenKV
// consumes, without clobbering values the caller already exported. An
// exported empty string counts as unset.
func applyEnv(cfg *Config) {
	setIfEmpty := func(key, value string) {
		if value == "" {
			return
		}
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	setIfEmpty("TABALA_STORAGE_DRIVER", cfg.StorageDriver)
	setIfEmpty("TABALA_SQLITE_PATH", cfg.SQLitePath)
	setIfEmpty("TABALA_POSTGRES_DSN", cfg.PostgresDSN)
	setIfEmpty("TABALA_S3_BUCKET", cfg.S3Bucket)
	setIfEmpty("TABALA_S3_REGION", cfg.S3Region)
	setIfEmpty("TABALA_S3_ENDPOINT", cfg.S3Endpoint)
	if cfg.S3PathStyle {
		setIfEmpty("TABALA_S3_PATH_STYLE", "true")
	}
}

func defaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir + "/tabala/prefs.json"
}
