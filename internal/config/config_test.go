package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
base_url: https://claims.internal.example/api/v1
timeout: 30s
retries: 3
upload_concurrency: 4
session_file: /tmp/s.yaml
log_level: info
log_format: json
`)
	cfg, err := Load(path, env(map[string]string{
		EnvLogLevel:  "debug",
		EnvTimeout:   "90",
		EnvJournalDB: "/tmp/j.db",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		BaseURL:           "https://claims.internal.example/api/v1",
		Timeout:           90 * time.Second,
		Retries:           3,
		UploadConcurrency: 4,
		SessionFile:       "/tmp/s.yaml",
		JournalDB:         "/tmp/j.db",
		LogLevel:          "debug",
		LogFormat:         "json",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileTimeoutForms(t *testing.T) {
	for _, tc := range []struct {
		body string
		want time.Duration
	}{
		{"timeout: 90\n", 90 * time.Second},
		{"timeout: \"90\"\n", 90 * time.Second},
		{"timeout: 1m30s\n", 90 * time.Second},
		{"timeout:\nretries: 2\n", DefaultTimeout},
	} {
		cfg, err := Load(writeFile(t, tc.body), env(nil))
		if err != nil {
			t.Errorf("Load(%q): %v", tc.body, err)
			continue
		}
		if cfg.Timeout != tc.want {
			t.Errorf("Load(%q).Timeout = %v, want %v", tc.body, cfg.Timeout, tc.want)
		}
	}

	if _, err := Load(writeFile(t, "timeout: soon\n"), env(nil)); err == nil {
		t.Error("expected error for an unparseable timeout")
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("", env(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != DefaultTimeout || cfg.Retries != 0 || cfg.LogLevel != "warn" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.SessionFile, filepath.Join("veritas", "session.yaml")) {
		t.Errorf("session file = %q", cfg.SessionFile)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), env(nil)); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":     "base_url: [",
		"bad scheme":   "base_url: ftp://example.com",
		"bad level":    "log_level: loud",
		"bad format":   "log_format: xml",
		"neg retries":  "retries: -1",
		"bad duration": "timeout: soon",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body), env(nil)); err == nil {
				t.Errorf("expected error for %q", body)
			}
		})
	}
}

func TestLoad_BadEnvTimeout(t *testing.T) {
	_, err := Load(writeFile(t, "retries: 1"), env(map[string]string{EnvTimeout: "later"}))
	if err == nil || !strings.Contains(err.Error(), EnvTimeout) {
		t.Fatalf("expected %s error, got %v", EnvTimeout, err)
	}
}
