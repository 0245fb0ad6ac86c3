package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "bridge:\n  url: http://127.0.0.1:8787\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.PollInterval != 300*time.Millisecond {
		t.Errorf("poll_interval default = %s, want 300ms", cfg.Engine.PollInterval)
	}
	if cfg.Engine.OpenDeviation != 120 || cfg.Engine.CloseDeviation != 35 {
		t.Errorf("deviation defaults = %d/%d, want 120/35", cfg.Engine.OpenDeviation, cfg.Engine.CloseDeviation)
	}
	if cfg.Engine.Magic != 123456 {
		t.Errorf("magic default = %d, want 123456", cfg.Engine.Magic)
	}
	if cfg.Engine.OpenComment != "Copied Trade" || cfg.Engine.CloseComment != "Closed by Copier" {
		t.Errorf("comment defaults = %q/%q", cfg.Engine.OpenComment, cfg.Engine.CloseComment)
	}
	if cfg.Publisher.PollInterval != 200*time.Millisecond {
		t.Errorf("publisher poll_interval default = %s, want 200ms", cfg.Publisher.PollInterval)
	}
	if cfg.Publisher.HTTPPort != 0 {
		t.Errorf("http_port default = %d, want 0 (disabled)", cfg.Publisher.HTTPPort)
	}
	if cfg.Files.AuditLog != "orderlog.txt" {
		t.Errorf("audit_log default = %q, want orderlog.txt", cfg.Files.AuditLog)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BRIDGE_URL", "http://127.0.0.1:9999")
	path := writeConfig(t, "bridge:\n  url: ${TEST_BRIDGE_URL}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bridge.URL != "http://127.0.0.1:9999" {
		t.Errorf("bridge.url = %q, want expanded env value", cfg.Bridge.URL)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "bridge:\n  url: http://x\nengiine:\n  poll_interval: 1s\n")

	if _, err := Load(path); err == nil {
		t.Error("misspelled section should fail to parse")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for nonexistent config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"missing bridge url",
			func(c *Config) { c.Bridge.URL = "" },
			"bridge.url",
		},
		{
			"engine poll too fast",
			func(c *Config) { c.Engine.PollInterval = 10 * time.Millisecond },
			"poll_interval",
		},
		{
			"negative deviation",
			func(c *Config) { c.Engine.OpenDeviation = -1 },
			"open_deviation",
		},
		{
			"publisher poll too fast",
			func(c *Config) { c.Publisher.PollInterval = time.Millisecond },
			"poll_interval",
		},
		{
			"port out of range",
			func(c *Config) { c.Publisher.HTTPPort = 70000 },
			"http_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Bridge: BridgeConfig{URL: "http://127.0.0.1:8787"}}
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}
