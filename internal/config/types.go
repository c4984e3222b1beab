package config

import (
	"fmt"
	"strings"
	"time"

	"clanbot/pkg/logx"
)

// Config is the top-level bot configuration. Durations are written as Go
// duration strings ("10m", "24h") and parsed through the typed accessors.
type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Hiscores HiscoresConfig `json:"hiscores"`
	Events   EventsConfig   `json:"events"`
	Chat     ChatConfig     `json:"chat"`
	Logging  LoggingConfig  `json:"logging"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Logx maps the logging section onto the log service config.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

type DiscordConfig struct {
	Token string `json:"token"`
	// Prefix is the chat command prefix, e.g. "!clan ".
	Prefix string `json:"prefix"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	DSN         string `json:"dsn,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type HiscoresConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	CacheTTL   string `json:"cache_ttl,omitempty"`
}

// EventsConfig tunes the lifecycle scheduler.
type EventsConfig struct {
	RefreshInterval string `json:"refresh_interval,omitempty"`
	RescanInterval  string `json:"rescan_interval,omitempty"`
	Lookahead       string `json:"lookahead,omitempty"`
}

// ChatConfig tunes the conversational command layer.
type ChatConfig struct {
	ConversationTTL string `json:"conversation_ttl,omitempty"`
}

const (
	defaultHiscoresTimeout = 30 * time.Second
	defaultCacheTTL        = 5 * time.Minute
	defaultRefreshInterval = 10 * time.Minute
	defaultRescanInterval  = 24 * time.Hour
	defaultLookahead       = 25 * time.Hour
	defaultConversationTTL = 30 * time.Minute
)

func (h HiscoresConfig) TimeoutDuration() (time.Duration, error) {
	return durationOrDefault("hiscores.timeout", h.Timeout, defaultHiscoresTimeout)
}

func (h HiscoresConfig) CacheTTLDuration() (time.Duration, error) {
	return durationOrDefault("hiscores.cache_ttl", h.CacheTTL, defaultCacheTTL)
}

func (e EventsConfig) RefreshIntervalDuration() (time.Duration, error) {
	return durationOrDefault("events.refresh_interval", e.RefreshInterval, defaultRefreshInterval)
}

func (e EventsConfig) RescanIntervalDuration() (time.Duration, error) {
	return durationOrDefault("events.rescan_interval", e.RescanInterval, defaultRescanInterval)
}

func (e EventsConfig) LookaheadDuration() (time.Duration, error) {
	return durationOrDefault("events.lookahead", e.Lookahead, defaultLookahead)
}

func (c ChatConfig) ConversationTTLDuration() (time.Duration, error) {
	return durationOrDefault("chat.conversation_ttl", c.ConversationTTL, defaultConversationTTL)
}

func (s *StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	if s == nil {
		return 0, nil
	}
	return durationOrDefault("storage.busy_timeout", s.BusyTimeout, 5*time.Second)
}

// Validate checks field-level constraints. Errors name the config path of the
// offending field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token: required")
	}
	if strings.TrimSpace(c.Discord.Prefix) == "" {
		return fmt.Errorf("discord.prefix: required")
	}

	if c.Storage == nil {
		return fmt.Errorf("storage: required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path: required for sqlite driver")
		}
	case "postgres", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn: required for postgres driver")
		}
	case "":
		return fmt.Errorf("storage.driver: required")
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := c.Storage.BusyTimeoutDuration(); err != nil {
		return err
	}

	if c.Hiscores.RatePerSec < 0 {
		return fmt.Errorf("hiscores.rate_per_sec: must be >= 0")
	}
	if _, err := c.Hiscores.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Hiscores.CacheTTLDuration(); err != nil {
		return err
	}

	if _, err := c.Events.RefreshIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.Events.RescanIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.Events.LookaheadDuration(); err != nil {
		return err
	}

	if _, err := c.Chat.ConversationTTLDuration(); err != nil {
		return err
	}

	return nil
}

// durationOrDefault parses a duration-string field, substituting def when
// the field is empty or zero. Negative durations are an error named by the
// field's config path.
func durationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
