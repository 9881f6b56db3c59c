package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
	ModeOff     = "off"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds everything the relay reads from the environment.
type Config struct {
	TelegramToken       string
	TelegramAPIBase     string
	TelegramBotUsername string
	TelegramMode        string
	TelegramPollTimeout int
	WebhookURL          string
	ListenAddr          string
	WebsocketEnabled    bool

	Provider              string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIChatModel       string
	OpenAICompletionModel string
	OpenAIImageCount      int
	GeminiModel           string
	MaxTokens             int
	Temperature           float64
	SystemPrompt          string
	RequestTimeout        time.Duration

	PhraseThreshold int
	HistoryWindow   int
	MaxParseErrors  int

	SpeechEnabled  bool
	TTSEnabled     bool
	SpeechLanguage string

	Debug bool
}

// Load reads configuration from environment variables. Call gotenv.Load first
// to pick up a local .env file.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:     envOrDefault("TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramBotUsername: strings.TrimPrefix(os.Getenv("TELEGRAM_BOT_USERNAME"), "@"),
		TelegramMode:        strings.ToLower(envOrDefault("TELEGRAM_MODE", ModePolling)),
		TelegramPollTimeout: envIntOrDefault("TELEGRAM_POLL_TIMEOUT", 30),
		WebhookURL:          os.Getenv("WEBHOOK_URL"),
		ListenAddr:          envOrDefault("LISTEN_ADDR", ":8080"),
		WebsocketEnabled:    envBoolOrDefault("WEBSOCKET_ENABLED", true),

		Provider:              strings.ToLower(envOrDefault("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         strings.TrimRight(envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		OpenAIChatModel:       envOrDefault("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
		OpenAICompletionModel: envOrDefault("OPENAI_COMPLETION_MODEL", "gpt-3.5-turbo-instruct"),
		OpenAIImageCount:      envIntOrDefault("OPENAI_IMAGE_COUNT", 2),
		GeminiModel:           envOrDefault("GEMINI_MODEL", "gemini-2.0-flash-001"),
		MaxTokens:             envIntOrDefault("MAX_TOKENS", 400),
		Temperature:           envFloatOrDefault("TEMPERATURE", 0),
		SystemPrompt:          os.Getenv("SYSTEM_PROMPT"),
		RequestTimeout:        envDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),

		PhraseThreshold: envIntOrDefault("PHRASE_THRESHOLD", 30),
		HistoryWindow:   envIntOrDefault("HISTORY_WINDOW", 20),
		MaxParseErrors:  envIntOrDefault("MAX_PARSE_ERRORS", 5),

		SpeechEnabled:  envBoolOrDefault("SPEECH_ENABLED", false),
		TTSEnabled:     envBoolOrDefault("TTS_ENABLED", false),
		SpeechLanguage: envOrDefault("SPEECH_LANGUAGE", "en-US"),

		Debug: envBoolOrDefault("DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the required keys for the selected transport and provider.
func (c Config) Validate() error {
	switch c.TelegramMode {
	case ModePolling, ModeOff:
	case ModeWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when TELEGRAM_MODE=webhook")
		}
	default:
		return fmt.Errorf("unsupported TELEGRAM_MODE %q", c.TelegramMode)
	}
	if c.TelegramMode != ModeOff && c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_MODE=%s", c.TelegramMode)
	}
	if c.TelegramMode == ModeOff && !c.WebsocketEnabled {
		return fmt.Errorf("no transport enabled: set TELEGRAM_MODE or WEBSOCKET_ENABLED")
	}

	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderGemini:
		// genai reads GOOGLE_API_KEY / GEMINI_API_KEY or ADC on its own.
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.Provider)
	}

	if c.PhraseThreshold <= 0 {
		return fmt.Errorf("PHRASE_THRESHOLD must be positive, got %d", c.PhraseThreshold)
	}
	return nil
}

// TelegramBotURL is the per-token API root, e.g. https://api.telegram.org/bot<token>.
func (c Config) TelegramBotURL() string {
	return fmt.Sprintf("%s/bot%s", strings.TrimRight(c.TelegramAPIBase, "/"), c.TelegramToken)
}

// TelegramFileURL is the download root for files returned by getFile.
func (c Config) TelegramFileURL() string {
	return fmt.Sprintf("%s/file/bot%s", strings.TrimRight(c.TelegramAPIBase, "/"), c.TelegramToken)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
