package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderYandex    LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN,required"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID      int64   `env:"ADMIN_USER"`

	// LLM settings. An empty model selects the provider default.
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"anthropic"`
	Model            string      `env:"LLM_MODEL"`
	MaxOutputTokens  int         `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"8000"`
	AnthropicAPIKey  string      `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string      `env:"ANTHROPIC_BASE_URL"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	StorageConfig

	AllowlistFilePath string `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`
	PendingFilePath   string `env:"PENDING_FILE_PATH" envDefault:"data/pending.json"`

	// Sessions
	SessionIdleTTL       time.Duration `env:"SESSION_IDLE_TTL" envDefault:"24h"`
	SessionSweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@hourly"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE"`
}

// StorageConfig selects and configures the conversation and attachment
// backends.
type StorageConfig struct {
	// Conversation store: file, dynamodb or postgres
	StoreBackend     string `env:"STORE_BACKEND" envDefault:"file"`
	StoreFilePath    string `env:"STORE_FILE_PATH" envDefault:"data/conversations.jsonl"`
	DynamoDBTable    string `env:"DYNAMODB_TABLE" envDefault:"Conversations"`
	DynamoDBEndpoint string `env:"DYNAMODB_ENDPOINT"`
	AWSRegion        string `env:"AWS_REGION" envDefault:"us-east-1"`
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresTable    string `env:"POSTGRES_TABLE" envDefault:"conversations"`

	// Attachment store: dir or s3
	AttachmentBackend string `env:"ATTACHMENT_BACKEND" envDefault:"dir"`
	AttachmentDir     string `env:"ATTACHMENT_DIR" envDefault:"data/attachments"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Parse reads the configuration from the environment without exiting on error.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseStorage reads only the storage settings, for tools that do not talk to
// Telegram or a model.
func ParseStorage() (*StorageConfig, error) {
	cfg := &StorageConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
