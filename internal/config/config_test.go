package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgard/webcord/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  json: true
discord:
  token: test-token
  channel_id: "123456"
server:
  addr: ":9000"
bridge:
  password: hunter2
  history_days: 3
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("log config = %+v, want debug/json", cfg.Log)
	}
	if cfg.Discord.Token != "test-token" || cfg.Discord.ChannelID != "123456" {
		t.Errorf("discord config = %+v", cfg.Discord)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("server addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want default 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Bridge.Password != "hunter2" || cfg.Bridge.HistoryDays != 3 {
		t.Errorf("bridge config = %+v", cfg.Bridge)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	path := writeConfig(t, `
log:
  level: info
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() error = nil, want validation failure for missing token/channel/password")
	}
}

func TestLoadInvalidLevel(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
discord:
  token: t
  channel_id: "1"
bridge:
  password: p
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() error = nil, want validation failure for log level")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WEBCORD_DISCORD_TOKEN", "env-token")
	t.Setenv("WEBCORD_DISCORD_CHANNEL_ID", "42")
	t.Setenv("WEBCORD_BRIDGE_PASSWORD", "env-pass")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.Discord.Token)
	}
	if cfg.Bridge.Password != "env-pass" {
		t.Errorf("password = %q, want env-pass", cfg.Bridge.Password)
	}
	if cfg.Bridge.HistoryDays != 7 {
		t.Errorf("history days = %d, want default 7", cfg.Bridge.HistoryDays)
	}
}
