package config

// Config is the whole runtime configuration.
//
// Values come from the optional config file first; environment variables
// (and .env) override them, and env-default fills whatever is still empty.
// Durations are Go duration strings (e.g. "500ms", "15s", "1m").
type Config struct {
	Firebase FirebaseConfig `json:"firebase"`
	Trello   TrelloConfig   `json:"trello"`
	Telegram TelegramConfig `json:"telegram"`
	Dedup    DedupConfig    `json:"dedup"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Digest   DigestConfig   `json:"digest"`
}

type FirebaseConfig struct {
	DatabaseURL  string `json:"database_url"  env:"FIREBASE_DATABASE_URL"`
	FeedbackPath string `json:"feedback_path" env:"FIREBASE_FEEDBACK_REFERENCE"`
	UsersPath    string `json:"users_path"    env:"FIREBASE_USERS_REFERENCE"`
	// ServiceAccount is the path of the service-account key file (do not log contents).
	ServiceAccount string `json:"service_account" env:"FIREBASE_SERVICE_ACCOUNT" env-default:"./service-key.json"`

	IdleTimeout  string `json:"idle_timeout,omitempty"  env:"FIREBASE_IDLE_TIMEOUT"  env-default:"90s"`
	ReconnectMin string `json:"reconnect_min,omitempty" env:"FIREBASE_RECONNECT_MIN" env-default:"1s"`
	ReconnectMax string `json:"reconnect_max,omitempty" env:"FIREBASE_RECONNECT_MAX" env-default:"1m"`
}

type TrelloConfig struct {
	BaseURL  string `json:"base_url,omitempty" env:"TRELLO_BASE_URL" env-default:"https://api.trello.com"`
	APIKey   string `json:"api_key"            env:"TRELLO_API_KEY"`
	Token    string `json:"token"              env:"TRELLO_TOKEN"`
	ListID   string `json:"list_id"            env:"FEEDBACK_LIST_ID"`
	MemberID string `json:"member_id"          env:"ASSIGNEE_ID"`
	Position string `json:"position,omitempty" env:"TRELLO_CARD_POSITION" env-default:"top"`
	Timeout  string `json:"timeout,omitempty"  env:"TRELLO_TIMEOUT"       env-default:"15s"`
}

type TelegramConfig struct {
	Token      string `json:"token"                  env:"TELEGRAM_BOT_API_KEY"`
	ChatID     string `json:"chat_id"                env:"TELEGRAM_CHAT_ID"`
	ThreadID   int    `json:"thread_id,omitempty"    env:"TELEGRAM_THREAD_ID"`
	APIURL     string `json:"api_url,omitempty"      env:"TELEGRAM_API_URL"      env-default:"https://api.telegram.org"`
	Timeout    string `json:"timeout,omitempty"      env:"TELEGRAM_TIMEOUT"      env-default:"15s"`
	RatePerSec int    `json:"rate_per_sec,omitempty" env:"TELEGRAM_RATE_PER_SEC" env-default:"1"`
}

type DedupConfig struct {
	Path string `json:"path"  env:"SAVED_IDS_FILE" env-default:"saved_ids.txt"`
	// Match is "substring" (default) or "exact".
	Match string `json:"match" env:"DEDUP_MATCH" env-default:"substring"`
}

type LoggingConfig struct {
	Level    string          `json:"level"   env:"LOG_LEVEL" env-default:"info"`
	Console  bool            `json:"console" env:"LOG_CONSOLE"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" env:"LOG_FILE_ENABLED"`
	Path    string `json:"path"    env:"LOG_FILE_PATH" env-default:"./feedbackbot.log"`
}

// LoggingTelegram mirrors warnings into a chat. ChatID falls back to
// telegram.chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"      env:"LOG_TELEGRAM_ENABLED"`
	ChatID     string `json:"chat_id"      env:"LOG_TELEGRAM_CHAT_ID"`
	ThreadID   int    `json:"thread_id"    env:"LOG_TELEGRAM_THREAD_ID"`
	MinLevel   string `json:"min_level"    env:"LOG_TELEGRAM_MIN_LEVEL"    env-default:"warn"`
	RatePerSec int    `json:"rate_per_sec" env:"LOG_TELEGRAM_RATE_PER_SEC" env-default:"1"`
}

// StorageConfig controls the optional delivery audit.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/feedbackbot.db }
type StorageConfig struct {
	Driver      string `json:"driver"                 env:"STORAGE_DRIVER"`
	Path        string `json:"path"                   env:"STORAGE_PATH"`
	BusyTimeout string `json:"busy_timeout,omitempty" env:"STORAGE_BUSY_TIMEOUT"`
}

type DigestConfig struct {
	Enabled   bool   `json:"enabled"            env:"DIGEST_ENABLED"`
	Schedule  string `json:"schedule"           env:"DIGEST_SCHEDULE" env-default:"0 9 * * *"`
	Timezone  string `json:"timezone,omitempty" env:"DIGEST_TIMEZONE"`
	SendEmpty bool   `json:"send_empty"         env:"DIGEST_SEND_EMPTY"`
}
