package app

import (
	"strings"
	"time"

	"feedbackbot/internal/config"
	"feedbackbot/internal/digest"
	"feedbackbot/internal/pipeline"
	"feedbackbot/internal/source/rtdb"
	"feedbackbot/internal/storage"
	"feedbackbot/internal/taskboard"
	kit "feedbackbot/internal/transport"
	"feedbackbot/internal/transport/telegram"
	logx "feedbackbot/pkg/logx"
)

func chatTarget(cfg *config.Config) kit.ChatTarget {
	return kit.ChatTarget{ChatID: strings.TrimSpace(cfg.Telegram.ChatID), ThreadID: cfg.Telegram.ThreadID}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	chat := strings.TrimSpace(cfg.Logging.Telegram.ChatID)
	if chat == "" {
		chat = strings.TrimSpace(cfg.Telegram.ChatID)
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chat,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTelegramConfig(cfg *config.Config, to config.Timeouts) telegram.Config {
	return telegram.Config{
		Token:      cfg.Telegram.Token,
		APIURL:     cfg.Telegram.APIURL,
		Timeout:    to.Telegram,
		RatePerSec: cfg.Telegram.RatePerSec,
	}
}

func mapTaskboardConfig(cfg *config.Config, to config.Timeouts) taskboard.Config {
	return taskboard.Config{
		BaseURL:  cfg.Trello.BaseURL,
		APIKey:   cfg.Trello.APIKey,
		Token:    cfg.Trello.Token,
		ListID:   cfg.Trello.ListID,
		MemberID: cfg.Trello.MemberID,
		Position: cfg.Trello.Position,
		Timeout:  to.Trello,
	}
}

func mapSourceConfig(cfg *config.Config, to config.Timeouts) rtdb.Config {
	return rtdb.Config{
		DatabaseURL: cfg.Firebase.DatabaseURL,
		Path:        cfg.Firebase.FeedbackPath,
		IdleTimeout: to.StreamIdle,
	}
}

func mapPipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Chat:        chatTarget(cfg),
		DatabaseURL: cfg.Firebase.DatabaseURL,
		UsersPath:   cfg.Firebase.UsersPath,
		ParseMode:   "Markdown",
		Escape:      telegram.EscapeMarkdown,
	}
}

func mapStorageConfig(cfg *config.Config, to config.Timeouts) storage.Config {
	busy := to.StorageBusy
	if busy <= 0 {
		busy = time.Second
	}
	return storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}
}

func mapDigestConfig(cfg *config.Config) digest.Config {
	return digest.Config{
		Enabled:   cfg.Digest.Enabled,
		Schedule:  cfg.Digest.Schedule,
		Timezone:  cfg.Digest.Timezone,
		SendEmpty: cfg.Digest.SendEmpty,
	}
}

func deliveryFromResult(r pipeline.Result) storage.Delivery {
	d := storage.Delivery{
		At:         r.At,
		RunID:      r.RunID,
		FeedbackID: r.FeedbackID,
		Category:   r.Category,
		Outcome:    string(r.Outcome),
		CardURL:    r.CardURL,
		TookMS:     r.Took.Milliseconds(),
	}
	if r.Err != nil {
		d.Error = r.Err.Error()
	}
	return d
}
