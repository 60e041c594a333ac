package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadConfigMergesOverlayAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  password: ${DB_PASS}
server:
  port: ":8080"
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)
	writeFile(t, dir, "secrets.env", `
# comment
DB_PASS="s3cret"
`)

	merged, err := LoadConfig("production", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var out struct {
		DB     DBConfig     `yaml:"db"`
		Server ServerConfig `yaml:"server"`
	}
	if err := Decode(merged, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DB.Host != "db.internal" {
		t.Fatalf("expected overlay host, got %q", out.DB.Host)
	}
	if out.DB.Port != 5432 {
		t.Fatalf("expected base port to survive merge, got %d", out.DB.Port)
	}
	if out.DB.Password != "s3cret" {
		t.Fatalf("expected substituted password, got %q", out.DB.Password)
	}
	if out.Server.Port != ":8080" {
		t.Fatalf("unexpected server port %q", out.Server.Port)
	}
}

func TestLoadConfigMissingOverlayFallsBackToBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: \":9090\"\n  shutdown_timeout: 7s\n")

	merged, err := LoadConfig("staging", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var out struct {
		Server ServerConfig `yaml:"server"`
	}
	if err := Decode(merged, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Server.Port != ":9090" {
		t.Fatalf("unexpected port %q", out.Server.Port)
	}
	if out.Server.ShutdownTimeout != 7*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", out.Server.ShutdownTimeout)
	}
}

func TestLoadConfigExpandsProcessEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: ${HIREPIPE_TEST_DB_HOST}
  user: ${HIREPIPE_TEST_DB_USER:-pipeline}
  password: ${HIREPIPE_TEST_DB_PASS}
`)
	t.Setenv("HIREPIPE_TEST_DB_HOST", "pg.local")
	t.Setenv("HIREPIPE_TEST_DB_PASS", "")

	merged, err := LoadConfig("local", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var out struct {
		DB DBConfig `yaml:"db"`
	}
	if err := Decode(merged, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DB.Host != "pg.local" {
		t.Fatalf("expected host from process env, got %q", out.DB.Host)
	}
	if out.DB.User != "pipeline" {
		t.Fatalf("expected default user, got %q", out.DB.User)
	}
	if out.DB.Password != "" {
		t.Fatalf("unset placeholder should expand to empty, got %q", out.DB.Password)
	}
}

func TestLoadConfigRequiresBase(t *testing.T) {
	if _, err := LoadConfig("local", t.TempDir()); err == nil {
		t.Fatalf("expected error without base.yaml")
	}
}

func TestOverrideDBFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")

	cfg := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&cfg)
	if cfg.Host != "pg" || cfg.Port != 6543 {
		t.Fatalf("env override not applied: %+v", cfg)
	}
}

func TestOverrideMQFromEnvSplitsBrokers(t *testing.T) {
	t.Setenv("MQ_DRIVER", "kafka")
	t.Setenv("MQ_KAFKA_BROKERS", "k1:9092,k2:9092")

	var cfg MQConfig
	OverrideMQFromEnv(&cfg)
	if cfg.Driver != "kafka" {
		t.Fatalf("unexpected driver %q", cfg.Driver)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}
