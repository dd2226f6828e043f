package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hoster.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[telegram]
bot_token = "99:hoster"
admin_id = 1000

[artifact]
repo_url = "https://github.com/example/bot.git"
`

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.BotToken != "99:hoster" {
		t.Fatalf("BotToken = %q", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.AdminID != 1000 {
		t.Fatalf("AdminID = %d", cfg.Telegram.AdminID)
	}
	if cfg.WorkspaceRoot != "bots" {
		t.Fatalf("WorkspaceRoot = %q, want default", cfg.WorkspaceRoot)
	}
	if cfg.Runtime != "process" {
		t.Fatalf("Runtime = %q, want default process", cfg.Runtime)
	}
	if cfg.MonitorInterval() != 60*time.Second {
		t.Fatalf("MonitorInterval() = %v, want 60s", cfg.MonitorInterval())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOSTER_BOT_TOKEN", "11:override")
	t.Setenv("WORKSPACE_ROOT", "/var/lib/hoster")
	t.Setenv("BOT_ADMIN_ID", "2222")

	cfg, err := Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.BotToken != "11:override" {
		t.Fatalf("BotToken = %q, want env override", cfg.Telegram.BotToken)
	}
	if cfg.WorkspaceRoot != "/var/lib/hoster" {
		t.Fatalf("WorkspaceRoot = %q, want env override", cfg.WorkspaceRoot)
	}
	if cfg.Telegram.AdminID != 2222 {
		t.Fatalf("AdminID = %d, want env override", cfg.Telegram.AdminID)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("HOSTER_BOT_TOKEN", "11:env")
	t.Setenv("BOT_ADMIN_ID", "1")
	t.Setenv("ARTIFACT_REPO_URL", "https://github.com/example/bot.git")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.BotToken != "11:env" {
		t.Fatalf("BotToken = %q", cfg.Telegram.BotToken)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "missing bot token",
			config: `
[telegram]
admin_id = 1

[artifact]
repo_url = "https://example.com/r.git"
`,
			wantErr: "bot token",
		},
		{
			name: "missing admin id",
			config: `
[telegram]
bot_token = "1:t"

[artifact]
repo_url = "https://example.com/r.git"
`,
			wantErr: "admin id",
		},
		{
			name: "missing artifact source",
			config: `
[telegram]
bot_token = "1:t"
admin_id = 1
`,
			wantErr: "artifact source",
		},
		{
			name: "bad runtime",
			config: `
runtime = "vm"
` + minimalConfig,
			wantErr: "unsupported runtime",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.config))
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
