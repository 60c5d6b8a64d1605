// Package config loads tunechat settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderType identifies the completion backend.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderBedrock   ProviderType = "bedrock"
)

// DefaultChatModel is the fine-tuned model the chat flow targets unless overridden.
const DefaultChatModel = "ft:gpt-3.5-turbo-0125:personal::BcPgmbYx"

// Config holds all configuration values.
type Config struct {
	// Completion provider
	Provider        ProviderType
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	OllamaHost      string
	AWSRegion       string // Bedrock only, empty uses the AWS SDK default chain

	// Chat
	ChatModel    string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string // Prepended to every chat request, never stored in history
	ChatTitle    string
	ChatGreeting string

	// Smoke test
	SmokeSystemPrompt string

	// Fine-tuning
	TrainingFile  string
	BaseModel     string
	PollInterval  time.Duration
	PollTimeout   time.Duration // 0 waits until the job is terminal
	ClientTimeout time.Duration

	// Server
	ServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	cfg := defaults()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads the YAML file at path, then applies environment overrides.
// An empty path falls back to TUNECHAT_CONFIG and then to the user config
// directory; a missing default file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("TUNECHAT_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyYAML(&cfg, data); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
			// no config file, env only
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Provider:          ProviderOpenAI,
		OpenAIBaseURL:     "https://api.openai.com/v1",
		OllamaHost:        "http://localhost:11434",
		ChatModel:         DefaultChatModel,
		Temperature:       0.8,
		MaxTokens:         500,
		ChatTitle:         "Hi, I'm Dr. Cannabis!",
		ChatGreeting:      "Do you have questions about medical cannabis? Ask me anything.",
		SmokeSystemPrompt: "Medical cannabis specialist",
		TrainingFile:      "training.jsonl",
		BaseModel:         "gpt-3.5-turbo",
		PollInterval:      60 * time.Second,
		ClientTimeout:     5 * time.Minute,
		ServerAddr:        ":8585",
		LogFile:           filepath.Join(os.TempDir(), "tunechat.log"),
		LogLevel:          slog.LevelInfo,
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tunechat", "config.yaml")
}

// fileConfig mirrors Config for YAML decoding. Durations are strings like "60s".
type fileConfig struct {
	Provider          string   `yaml:"provider"`
	OpenAIAPIKey      string   `yaml:"openai_api_key"`
	OpenAIBaseURL     string   `yaml:"openai_base_url"`
	AnthropicAPIKey   string   `yaml:"anthropic_api_key"`
	OllamaHost        string   `yaml:"ollama_host"`
	AWSRegion         string   `yaml:"aws_region"`
	ChatModel         string   `yaml:"model"`
	Temperature       *float64 `yaml:"temperature"`
	MaxTokens         *int     `yaml:"max_tokens"`
	SystemPrompt      string   `yaml:"system_prompt"`
	ChatTitle         string   `yaml:"title"`
	ChatGreeting      string   `yaml:"greeting"`
	SmokeSystemPrompt string   `yaml:"smoke_system_prompt"`
	TrainingFile      string   `yaml:"training_file"`
	BaseModel         string   `yaml:"base_model"`
	PollInterval      string   `yaml:"poll_interval"`
	PollTimeout       string   `yaml:"poll_timeout"`
	ClientTimeout     string   `yaml:"client_timeout"`
	ServerAddr        string   `yaml:"server_addr"`
	LogFile           string   `yaml:"log_file"`
	LogLevel          string   `yaml:"log_level"`
}

func applyYAML(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&cfg.OpenAIAPIKey, fc.OpenAIAPIKey)
	setString(&cfg.OpenAIBaseURL, fc.OpenAIBaseURL)
	setString(&cfg.AnthropicAPIKey, fc.AnthropicAPIKey)
	setString(&cfg.OllamaHost, fc.OllamaHost)
	setString(&cfg.AWSRegion, fc.AWSRegion)
	setString(&cfg.ChatModel, fc.ChatModel)
	setString(&cfg.SystemPrompt, fc.SystemPrompt)
	setString(&cfg.ChatTitle, fc.ChatTitle)
	setString(&cfg.ChatGreeting, fc.ChatGreeting)
	setString(&cfg.SmokeSystemPrompt, fc.SmokeSystemPrompt)
	setString(&cfg.TrainingFile, fc.TrainingFile)
	setString(&cfg.BaseModel, fc.BaseModel)
	setString(&cfg.ServerAddr, fc.ServerAddr)
	setString(&cfg.LogFile, fc.LogFile)

	if fc.Provider != "" {
		cfg.Provider = ProviderType(strings.ToLower(fc.Provider))
	}
	if fc.Temperature != nil {
		cfg.Temperature = *fc.Temperature
	}
	if fc.MaxTokens != nil {
		cfg.MaxTokens = *fc.MaxTokens
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &cfg.PollInterval},
		{"poll_timeout", fc.PollTimeout, &cfg.PollTimeout},
		{"client_timeout", fc.ClientTimeout, &cfg.ClientTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

func applyEnv(cfg *Config) {
	cfg.Provider = ProviderType(strings.ToLower(getEnv("TUNECHAT_PROVIDER", string(cfg.Provider))))
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)

	cfg.ChatModel = getEnv("TUNECHAT_MODEL", cfg.ChatModel)
	cfg.Temperature = getEnvFloat("TUNECHAT_TEMPERATURE", cfg.Temperature)
	cfg.MaxTokens = getEnvInt("TUNECHAT_MAX_TOKENS", cfg.MaxTokens)
	cfg.SystemPrompt = getEnv("TUNECHAT_SYSTEM_PROMPT", cfg.SystemPrompt)

	cfg.TrainingFile = getEnv("TUNECHAT_TRAINING_FILE", cfg.TrainingFile)
	cfg.BaseModel = getEnv("TUNECHAT_BASE_MODEL", cfg.BaseModel)
	cfg.PollInterval = getEnvDuration("TUNECHAT_POLL_INTERVAL", cfg.PollInterval)
	cfg.PollTimeout = getEnvDuration("TUNECHAT_POLL_TIMEOUT", cfg.PollTimeout)
	cfg.ClientTimeout = getEnvDuration("TUNECHAT_CLIENT_TIMEOUT", cfg.ClientTimeout)

	cfg.ServerAddr = getEnv("TUNECHAT_SERVER_ADDR", cfg.ServerAddr)

	cfg.LogFile = getEnv("TUNECHAT_LOG_FILE", cfg.LogFile)
	if lvl := os.Getenv("TUNECHAT_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = parseLogLevel(lvl)
	}
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
