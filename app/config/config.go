package config

import (
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath             = "config.yaml"
	PathEnv                 = "MENREIKI_CONFIG"
	DefaultMaxMessageLength = 2000
	DefaultHistorySize      = 30
	DefaultRequestTimeout   = 60 * time.Second
)

type Config struct {
	Log     Log     `yaml:"log"`
	Discord Discord `yaml:"discord"`
	OpenAI  OpenAI  `yaml:"openai"`
	History History `yaml:"history"`
	HTTP    HTTP    `yaml:"http"`
}

type Log struct {
	// Minimal level: debug, info, warn or error
	Level string `yaml:"level" example:"info" validate:"omitempty,oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type Discord struct {
	// Application ID of the discord bot
	AppID string `yaml:"app_id" example:"1234567890123456789" validate:"required"`
	// Bot token
	Token string `yaml:"token" example:"MTIzNDU2Nzg5MDEyMzQ1Njc4OQ.GaBcDe.abc123" validate:"required"`
	// Role required to talk to the bot, empty means everyone
	RequiredRoleID string `yaml:"required_role_id" example:"987654321098765432"`
	// Register slash commands for this guild only, empty means global
	GuildID string `yaml:"guild_id" example:"112233445566778899"`
	// Platform limit for a single outgoing message
	MaxMessageLength int `yaml:"max_message_length" example:"2000" validate:"min=1"`
}

type OpenAI struct {
	// Backend driver: openai or langchain
	Driver string `yaml:"driver" example:"openai" validate:"oneof=openai langchain"`
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required"`
	// Number of candidate completions to request
	Candidates int `yaml:"n" example:"1" validate:"min=1"`
	// Timeout of a single completion request
	Timeout time.Duration `yaml:"timeout" example:"60s" validate:"min=0"`
	// Messages sent before every conversation
	Preamble []PreambleMessage `yaml:"preamble" validate:"dive"`
}

type PreambleMessage struct {
	Role    string `yaml:"role" example:"system" validate:"oneof=system user assistant"`
	Content string `yaml:"content" example:"You are a helpful assistant." validate:"required"`
}

type History struct {
	// Maximum number of turns kept per conversation
	MaxEntries int `yaml:"max_entries" example:"30" validate:"min=2"`
}

type HTTP struct {
	// Status server address, empty disables it
	Listen string `yaml:"listen" example:":8080"`
}

func Load() (*Config, error) {
	path := os.Getenv(PathEnv)
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// placeholderRe matches ${NAME}. Bare $ signs are left alone so prompts and
// tokens may contain them literally.
var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandPlaceholders(data []byte) []byte {
	return placeholderRe.ReplaceAllFunc(data, func(match []byte) []byte {
		name := placeholderRe.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func Parse(data []byte) (*Config, error) {
	var result Config

	if err := yaml.Unmarshal(expandPlaceholders(data), &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	if result.Log.Level == "" {
		result.Log.Level = "debug"
	}
	if result.Discord.MaxMessageLength == 0 {
		result.Discord.MaxMessageLength = DefaultMaxMessageLength
	}
	if result.OpenAI.Driver == "" {
		result.OpenAI.Driver = "openai"
	}
	if result.OpenAI.Candidates == 0 {
		result.OpenAI.Candidates = 1
	}
	if result.OpenAI.Timeout == 0 {
		result.OpenAI.Timeout = DefaultRequestTimeout
	}
	if result.History.MaxEntries == 0 {
		result.History.MaxEntries = DefaultHistorySize
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}
