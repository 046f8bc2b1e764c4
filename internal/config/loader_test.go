package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// relayEnv lists every variable Load consults so tests start from a clean slate.
var relayEnv = []string{
	"MONITOR_RELAY_CONFIG", "LOG_LEVEL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	"GITHUB_TOKEN", "GITHUB_REPOSITORY", "GITHUB_REF", "STATE_BACKEND", "STATE_PATH",
	"WEBHOOK_PATH", "WEBHOOK_SECRET", "PORT", "MONITOR_WORKFLOWS",
}

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, name := range relayEnv {
		t.Setenv(name, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
telegram:
  token: tg-token
  chat_id: "12345"
github:
  token: gh-token
  repository: acme/monitors
workflows:
  - id: monitor-uptime.yml
    label: Uptime
  - id: monitor-prices.yml
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Telegram.ChatID != "12345" {
					t.Errorf("chat_id = %q", cfg.Telegram.ChatID)
				}
				if len(cfg.Workflows) != 2 {
					t.Fatalf("len(workflows) = %d, want 2", len(cfg.Workflows))
				}
				if cfg.Workflows[1].Label != "monitor-prices.yml" {
					t.Errorf("label should default to id, got %q", cfg.Workflows[1].Label)
				}
				if cfg.GitHub.Ref != "main" {
					t.Errorf("ref default = %q, want main", cfg.GitHub.Ref)
				}
				if cfg.State.Backend != BackendFile {
					t.Errorf("backend default = %q", cfg.State.Backend)
				}
				if cfg.Webhook.SecretHeader != "X-Telegram-Bot-Api-Secret-Token" {
					t.Errorf("secret header default = %q", cfg.Webhook.SecretHeader)
				}
				if err := cfg.CheckRelay(); err != nil {
					t.Errorf("CheckRelay() = %v", err)
				}
			},
		},
		{
			name: "env interpolation in file",
			yaml: `
telegram:
  token: ${TEST_RELAY_TG_TOKEN}
poller:
  every: 2m
`,
			env: map[string]string{"TEST_RELAY_TG_TOKEN": "from-env"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Telegram.Token != "from-env" {
					t.Errorf("token = %q, want from-env", cfg.Telegram.Token)
				}
				if cfg.Poller.Every != 2*time.Minute {
					t.Errorf("poller.every = %v", cfg.Poller.Every)
				}
			},
		},
		{
			name: "environment overrides file",
			yaml: `
telegram:
  chat_id: "1"
github:
  repository: acme/file
`,
			env: map[string]string{
				"TELEGRAM_CHAT_ID":  "999",
				"GITHUB_REPOSITORY": "acme/env",
				"PORT":              "9090",
				"MONITOR_WORKFLOWS": "a.yml:Alpha, b.yml",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Telegram.ChatID != "999" {
					t.Errorf("chat_id = %q, want 999", cfg.Telegram.ChatID)
				}
				if cfg.GitHub.Repository != "acme/env" {
					t.Errorf("repository = %q", cfg.GitHub.Repository)
				}
				if cfg.Webhook.Listen != ":9090" {
					t.Errorf("listen = %q", cfg.Webhook.Listen)
				}
				want := []WorkflowConfig{{ID: "a.yml", Label: "Alpha"}, {ID: "b.yml", Label: "b.yml"}}
				if len(cfg.Workflows) != 2 || cfg.Workflows[0] != want[0] || cfg.Workflows[1] != want[1] {
					t.Errorf("workflows = %+v", cfg.Workflows)
				}
			},
		},
		{
			name:    "invalid log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: true,
		},
		{
			name:    "invalid backend",
			yaml:    "state:\n  backend: redis\n",
			wantErr: true,
		},
		{
			name:    "workflow without id",
			yaml:    "workflows:\n  - label: Nameless\n",
			wantErr: true,
		},
		{
			name:    "colliding webhook paths",
			yaml:    "webhook:\n  path: /healthz\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "telegram: [unterminated\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearRelayEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil && err == nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadWithoutFileUsesDefaultsAndEnv(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")

	// Run from an empty directory so ./config.yaml is not discovered.
	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.SourcePath != "" {
		t.Errorf("SourcePath = %q, want empty", cfg.SourcePath)
	}
	if cfg.Telegram.Token != "tok" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Service.Name != "monitor-relay" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
}

func TestLoadRejectsTamperedLockedConfig(t *testing.T) {
	clearRelayEnv(t)
	p := writeConfig(t, "service:\n  name: locked\n")
	if _, err := GenerateChecksumsWithReport(filepath.Dir(p), []string{"config.yaml"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err != nil {
		t.Fatalf("Load() on locked, unchanged config: %v", err)
	}

	if err := os.WriteFile(p, []byte("service:\n  name: changed\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected tampered config to be rejected")
	}
}

func TestCheckRelay(t *testing.T) {
	full := func() *Config {
		cfg := Defaults()
		cfg.Telegram.Token = "t"
		cfg.Telegram.ChatID = "1"
		cfg.GitHub.Token = "g"
		cfg.GitHub.Repository = "acme/monitors"
		cfg.Workflows = []WorkflowConfig{{ID: "a.yml", Label: "A"}}
		return cfg
	}

	if err := full().CheckRelay(); err != nil {
		t.Fatalf("complete config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"unresolved chat", func(c *Config) { c.Telegram.ChatID = "${CHAT}" }, "telegram.chat_id"},
		{"no github token", func(c *Config) { c.GitHub.Token = " " }, "github.token"},
		{"bad repository", func(c *Config) { c.GitHub.Repository = "monitors" }, "owner/name"},
		{"no workflows", func(c *Config) { c.Workflows = nil }, "workflows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full()
			tt.mutate(cfg)
			err := cfg.CheckRelay()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("CheckRelay() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseWorkflowList(t *testing.T) {
	got, err := ParseWorkflowList(" a.yml:Alpha ,, b.yml ")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Label != "Alpha" || got[1].Label != "b.yml" {
		t.Fatalf("unexpected %+v", got)
	}

	if _, err := ParseWorkflowList(":Label"); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := ParseWorkflowList(" , "); err == nil {
		t.Fatal("expected error for empty list")
	}
}
