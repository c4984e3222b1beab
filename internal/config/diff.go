package config

import (
	"sort"
	"strings"

	logx "clanbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (the bot token, storage DSNs) are
// reported as booleans only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Discord (never log the token)
	if (strings.TrimSpace(oldCfg.Discord.Token) != "") != (strings.TrimSpace(newCfg.Discord.Token) != "") ||
		oldCfg.Discord.Prefix != newCfg.Discord.Prefix {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_set", strings.TrimSpace(newCfg.Discord.Token) != ""),
			logx.String("discord.prefix", newCfg.Discord.Prefix),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage (never log the DSN)
	var oDriver, nDriver, oBusy, nBusy string
	var oDSNSet, nDSNSet, oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oDSNSet = strings.TrimSpace(oldCfg.Storage.DSN) != ""
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nDSNSet = strings.TrimSpace(newCfg.Storage.DSN) != ""
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oDSNSet != nDSNSet || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.dsn_set", nDSNSet),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Hiscores
	if oldCfg.Hiscores != newCfg.Hiscores {
		changed = append(changed, "hiscores")
		attrs = append(attrs,
			logx.String("hiscores.base_url", strings.TrimSpace(newCfg.Hiscores.BaseURL)),
			logx.String("hiscores.timeout", strings.TrimSpace(newCfg.Hiscores.Timeout)),
			logx.Int("hiscores.rate_per_sec", newCfg.Hiscores.RatePerSec),
			logx.String("hiscores.cache_ttl", strings.TrimSpace(newCfg.Hiscores.CacheTTL)),
		)
	}

	// Events (scheduler timing)
	if oldCfg.Events != newCfg.Events {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.String("events.refresh_interval", strings.TrimSpace(newCfg.Events.RefreshInterval)),
			logx.String("events.rescan_interval", strings.TrimSpace(newCfg.Events.RescanInterval)),
			logx.String("events.lookahead", strings.TrimSpace(newCfg.Events.Lookahead)),
		)
	}

	// Chat
	if oldCfg.Chat != newCfg.Chat {
		changed = append(changed, "chat")
		attrs = append(attrs,
			logx.String("chat.conversation_ttl", strings.TrimSpace(newCfg.Chat.ConversationTTL)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
