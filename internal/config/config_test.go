package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
server:
  port: 9090
  api_keys:
    k-123: user-1
pipeline:
  ocr_endpoint: http://ocr.local/ocr-direct
  ocr_api_key: secret
  ocr_timeout: 90s
  redaction_endpoint: http://redact.local/redact-text-batched
  file_store:
    host: sftp.local
    port: 2099
    username: ehr
    password: pw
    root: /opt/FileServer/TREE/ehr
  retry:
    max_attempts: 5
generator:
  provider: openai
  api_key: sk-test
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Pipeline.OCRTimeout != 90*time.Second {
		t.Errorf("ocr timeout = %v", cfg.Pipeline.OCRTimeout)
	}
	if cfg.Pipeline.RedactionTimeout != 2000*time.Second {
		t.Errorf("redaction timeout default lost: %v", cfg.Pipeline.RedactionTimeout)
	}
	if cfg.Pipeline.FileStore.Port != 2099 {
		t.Errorf("sftp port = %d", cfg.Pipeline.FileStore.Port)
	}
	if cfg.Pipeline.Retry.MaxAttempts != 5 || cfg.Pipeline.Retry.InitialInterval != 2*time.Second {
		t.Errorf("retry = %+v", cfg.Pipeline.Retry)
	}
	if cfg.Pipeline.StagingSubdir != "hipaa_input" {
		t.Errorf("staging subdir = %q", cfg.Pipeline.StagingSubdir)
	}
	if cfg.Server.APIKeys["k-123"] != "user-1" {
		t.Errorf("api keys = %v", cfg.Server.APIKeys)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MEDCODER_SFTP_PASSWORD", "from-env")
	t.Setenv("MEDCODER_OCR_TIMEOUT", "5m")
	t.Setenv("MEDCODER_KEEP_WORK_FILES", "true")
	t.Setenv("MEDCODER_API_KEYS", "a:alice, b:bob")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.FileStore.Password != "from-env" {
		t.Errorf("password = %q", cfg.Pipeline.FileStore.Password)
	}
	if cfg.Pipeline.OCRTimeout != 5*time.Minute {
		t.Errorf("ocr timeout = %v", cfg.Pipeline.OCRTimeout)
	}
	if !cfg.Pipeline.KeepWorkFiles {
		t.Error("keep_work_files not applied")
	}
	if cfg.Server.APIKeys["b"] != "bob" || len(cfg.Server.APIKeys) != 2 {
		t.Errorf("api keys = %v", cfg.Server.APIKeys)
	}
}

func TestLoadBadEnvValue(t *testing.T) {
	t.Setenv("MEDCODER_PORT", "eighty")
	if _, err := Load(writeConfig(t, sampleYAML)); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Generator.Provider = "bard"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"ocr_endpoint", "redaction_endpoint", "file_store.host", "provider"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestDSNs(t *testing.T) {
	cfg := Default()
	cfg.Database.Host, cfg.Database.Port = "db", 3306
	cfg.Database.User, cfg.Database.Password, cfg.Database.Name = "u", "p", "medcoder"
	if got := cfg.MySQLDSN(); got != "u:p@tcp(db:3306)/medcoder?parseTime=true&charset=utf8mb4&loc=UTC" {
		t.Errorf("mysql dsn = %q", got)
	}
	if got := cfg.PostgresDSN(); !strings.Contains(got, "dbname=medcoder") || !strings.Contains(got, "sslmode=disable") {
		t.Errorf("postgres dsn = %q", got)
	}
}
