package config

import (
	"os"
	"path/filepath"
	"testing"
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
	path := writeConfig(t, `
database:
  host: localhost
  user: fg
  password: fg
  name: facegroups
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Grouping.SimilarityThreshold != 0.6 {
		t.Errorf("similarity threshold = %f, want 0.6", cfg.Grouping.SimilarityThreshold)
	}
	if cfg.Grouping.EmbeddingDim != 512 {
		t.Errorf("embedding dim = %d, want 512", cfg.Grouping.EmbeddingDim)
	}
	if !cfg.Grouping.AutoProcess {
		t.Error("auto_process should default to true")
	}
	if cfg.Vision.DetectionThreshold != 0.5 {
		t.Errorf("detection threshold = %f, want 0.5", cfg.Vision.DetectionThreshold)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
grouping:
  similarity_threshold: 0.75
  auto_process: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Grouping.SimilarityThreshold != 0.75 {
		t.Errorf("similarity threshold = %f, want 0.75", cfg.Grouping.SimilarityThreshold)
	}
	if cfg.Grouping.AutoProcess {
		t.Error("auto_process = true, want false from file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FG_SERVER_PORT", "7070")
	t.Setenv("FG_SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("FG_AUTO_PROCESS", "false")
	t.Setenv("FG_DB_HOST", "db.internal")

	path := writeConfig(t, `
server:
  port: 9090
database:
  host: localhost
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Grouping.SimilarityThreshold != 0.8 {
		t.Errorf("similarity threshold = %f, want env override 0.8", cfg.Grouping.SimilarityThreshold)
	}
	if cfg.Grouping.AutoProcess {
		t.Error("auto_process = true, want env override false")
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("db host = %s, want env override db.internal", cfg.Database.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, Name: "db", User: "u", Password: "p"}
	want := "postgres://u:p@h:5432/db?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN = %s, want %s", got, want)
	}
}
