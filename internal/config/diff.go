package config

import (
	"sort"
	"strings"

	logx "feedbackbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe structured fields
// for logging (never secrets), and the changed sections that only take
// effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	restart := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)
	mark := func(section string, needsRestart bool, fields ...logx.Field) {
		changed = append(changed, section)
		if needsRestart {
			restart = append(restart, section)
		}
		attrs = append(attrs, fields...)
	}

	if oldCfg.Firebase != newCfg.Firebase {
		mark("firebase", true,
			logx.String("firebase.database_url", newCfg.Firebase.DatabaseURL),
			logx.String("firebase.feedback_path", newCfg.Firebase.FeedbackPath),
			logx.String("firebase.users_path", newCfg.Firebase.UsersPath),
		)
	}

	// Trello (never log key or token)
	if oldCfg.Trello != newCfg.Trello {
		mark("trello", true,
			logx.String("trello.list_id", newCfg.Trello.ListID),
			logx.Bool("trello.member_set", strings.TrimSpace(newCfg.Trello.MemberID) != ""),
			logx.Bool("trello.token_changed", oldCfg.Trello.Token != newCfg.Trello.Token || oldCfg.Trello.APIKey != newCfg.Trello.APIKey),
		)
	}

	// Telegram (never log token)
	if oldCfg.Telegram != newCfg.Telegram {
		mark("telegram", true,
			logx.String("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Int("telegram.rate_per_sec", newCfg.Telegram.RatePerSec),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if oldCfg.Dedup != newCfg.Dedup {
		mark("dedup", true,
			logx.String("dedup.path", newCfg.Dedup.Path),
			logx.String("dedup.match", newCfg.Dedup.Match),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Digest != newCfg.Digest {
		mark("digest", false,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.schedule", newCfg.Digest.Schedule),
			logx.String("digest.timezone", newCfg.Digest.Timezone),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
