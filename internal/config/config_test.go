package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validYAML = `
discord:
  token: "abc123"
  prefix: "!clan "
storage:
  driver: sqlite
  path: ./clanbot.db
hiscores:
  rate_per_sec: 2
events:
  refresh_interval: 5m
logging:
  level: debug
  console: true
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeFile(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Discord.Prefix != "!clan " {
		t.Fatalf("prefix = %q", cfg.Discord.Prefix)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	body := `{"discord":{"token":"abc","prefix":"!clan "},"storage":{"driver":"postgres","dsn":"postgres://u@h/db"}}`
	m := NewManager(writeFile(t, "config.json", body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()

	body := `{"discord":{"token":"abc","prefix":"!"},"bogus":true}`
	m := NewManager(writeFile(t, "config.json", body))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Discord: DiscordConfig{Token: "t", Prefix: "!clan "},
			Storage: &StorageConfig{Driver: "sqlite", Path: "a.db"},
		}
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantSub string
	}{
		{"missing token", func(c *Config) { c.Discord.Token = " " }, "discord.token"},
		{"missing prefix", func(c *Config) { c.Discord.Prefix = "" }, "discord.prefix"},
		{"missing storage", func(c *Config) { c.Storage = nil }, "storage"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, "storage.dsn"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"negative rate", func(c *Config) { c.Hiscores.RatePerSec = -1 }, "hiscores.rate_per_sec"},
		{"bad duration", func(c *Config) { c.Events.Lookahead = "soon" }, "events.lookahead"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestDurationDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	if d, err := cfg.Events.RefreshIntervalDuration(); err != nil || d != 10*time.Minute {
		t.Fatalf("refresh interval = %v, %v", d, err)
	}
	if d, err := cfg.Events.RescanIntervalDuration(); err != nil || d != 24*time.Hour {
		t.Fatalf("rescan interval = %v, %v", d, err)
	}
	if d, err := cfg.Chat.ConversationTTLDuration(); err != nil || d != 30*time.Minute {
		t.Fatalf("conversation ttl = %v, %v", d, err)
	}

	cfg.Events.RefreshInterval = "90s"
	if d, err := cfg.Events.RefreshIntervalDuration(); err != nil || d != 90*time.Second {
		t.Fatalf("refresh interval override = %v, %v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		Discord: DiscordConfig{Token: "t", Prefix: "!clan "},
		Logging: LoggingConfig{Level: "info"},
	}
	newCfg := &Config{
		Discord: DiscordConfig{Token: "t", Prefix: "!clan "},
		Logging: LoggingConfig{Level: "debug"},
		Events:  EventsConfig{RefreshInterval: "1m"},
	}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"events", "logging"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("expected log attrs for changed sections")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Watch(ctx); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	// Let the watcher arm before touching the file.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(validYAML, "level: debug", "level: warn", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q, want warn", cfg.Logging.Level)
		}
		if m.Get() != cfg {
			t.Fatal("published config was not committed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never published")
	}

	cancel()
	<-done
	m.Unsubscribe(sub)
}
