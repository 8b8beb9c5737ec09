package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	TelegramToken string `toml:"telegram_bot_token"`
	GeminiAPIKey  string `toml:"gemini_api_key"`

	GeminiBaseURL           string `toml:"gemini_base_url"`
	GeminiAPIVersion        string `toml:"gemini_api_version"`
	GeminiImageModel        string `toml:"gemini_image_model"`
	GeminiTextModel         string `toml:"gemini_text_model"`
	GeminiRequestsPerMinute int    `toml:"gemini_requests_per_minute"`
	VerifyCacheMinutes      int    `toml:"verify_cache_minutes"`

	DataDir string `toml:"data_dir"`
	WebAddr string `toml:"web_addr"`
	// ModelsBaseURL serves predefined model references. Empty skips them.
	ModelsBaseURL string `toml:"models_base_url"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Debug     bool   `toml:"debug"`

	PreferIPv4 bool `toml:"prefer_ipv4"`

	DailyLimit    int    `toml:"daily_limit"`
	UsageTimezone string `toml:"usage_timezone"`

	ProductCooldownSeconds   int `toml:"product_cooldown_seconds"`
	CharacterCooldownSeconds int `toml:"character_cooldown_seconds"`
	AutosaveDebounceMS       int `toml:"autosave_debounce_ms"`
	MediaGroupDebounceMS     int `toml:"media_group_debounce_ms"`

	MaxConcurrent         int `toml:"max_concurrent"`
	MaxHistoryItems       int `toml:"max_history_items"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	HTTPTimeoutSeconds    int `toml:"http_timeout_seconds"`
	CallTimeoutSeconds    int `toml:"call_timeout_seconds"`
}

func Default() Config {
	return Config{
		GeminiBaseURL:            "https://generativelanguage.googleapis.com",
		GeminiAPIVersion:         "v1beta",
		GeminiImageModel:         "gemini-2.5-flash-image",
		GeminiTextModel:          "gemini-2.5-flash",
		GeminiRequestsPerMinute:  10,
		VerifyCacheMinutes:       30,
		DataDir:                  "data",
		WebAddr:                  ":8080",
		LogLevel:                 "info",
		LogFormat:                "json",
		PreferIPv4:               true,
		DailyLimit:               20,
		ProductCooldownSeconds:   30,
		CharacterCooldownSeconds: 15,
		AutosaveDebounceMS:       2000,
		MediaGroupDebounceMS:     1200,
		MaxConcurrent:            4,
		MaxHistoryItems:          100,
		RequestTimeoutSeconds:    600,
		HTTPTimeoutSeconds:       180,
		CallTimeoutSeconds:       120,
	}
}

// DefaultPath is the config file read when CONFIG_FILE is unset.
const DefaultPath = "gelap.toml"

// Path is the config file to load: CONFIG_FILE or DefaultPath.
func Path() string {
	return getEnv("CONFIG_FILE", DefaultPath)
}

// Load applies defaults, then the TOML file at path (skipped when path is
// empty or the file does not exist), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiBaseURL = getEnv("GEMINI_BASE_URL", c.GeminiBaseURL)
	c.GeminiAPIVersion = getEnv("GEMINI_API_VERSION", c.GeminiAPIVersion)
	c.GeminiImageModel = getEnv("GEMINI_IMAGE_MODEL", c.GeminiImageModel)
	c.GeminiTextModel = getEnv("GEMINI_TEXT_MODEL", c.GeminiTextModel)
	c.GeminiRequestsPerMinute = getEnvInt("GEMINI_REQUESTS_PER_MINUTE", c.GeminiRequestsPerMinute)
	c.VerifyCacheMinutes = getEnvInt("VERIFY_CACHE_MINUTES", c.VerifyCacheMinutes)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.WebAddr = getEnv("WEB_ADDR", c.WebAddr)
	c.ModelsBaseURL = getEnv("MODELS_BASE_URL", c.ModelsBaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.PreferIPv4 = getEnvBool("PREFER_IPV4", c.PreferIPv4)
	c.DailyLimit = getEnvInt("DAILY_LIMIT", c.DailyLimit)
	c.UsageTimezone = getEnv("USAGE_TIMEZONE", c.UsageTimezone)
	c.ProductCooldownSeconds = getEnvInt("PRODUCT_COOLDOWN_SECONDS", c.ProductCooldownSeconds)
	c.CharacterCooldownSeconds = getEnvInt("CHARACTER_COOLDOWN_SECONDS", c.CharacterCooldownSeconds)
	c.AutosaveDebounceMS = getEnvInt("AUTOSAVE_DEBOUNCE_MS", c.AutosaveDebounceMS)
	c.MediaGroupDebounceMS = getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", c.MediaGroupDebounceMS)
	c.MaxConcurrent = getEnvInt("MAX_CONCURRENT", c.MaxConcurrent)
	c.MaxHistoryItems = getEnvInt("MAX_HISTORY_ITEMS", c.MaxHistoryItems)
	c.RequestTimeoutSeconds = getEnvInt("REQUEST_TIMEOUT_SECONDS", c.RequestTimeoutSeconds)
	c.HTTPTimeoutSeconds = getEnvInt("HTTP_TIMEOUT_SECONDS", c.HTTPTimeoutSeconds)
	c.CallTimeoutSeconds = getEnvInt("CALL_TIMEOUT_SECONDS", c.CallTimeoutSeconds)
}

func (c *Config) normalize() {
	d := Default()
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	if c.DailyLimit < 1 {
		c.DailyLimit = d.DailyLimit
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.MaxHistoryItems < 1 {
		c.MaxHistoryItems = 1
	}
	if c.GeminiRequestsPerMinute < 0 {
		c.GeminiRequestsPerMinute = 0
	}
	if c.ProductCooldownSeconds < 0 {
		c.ProductCooldownSeconds = 0
	}
	if c.CharacterCooldownSeconds < 0 {
		c.CharacterCooldownSeconds = 0
	}
	if c.AutosaveDebounceMS <= 0 {
		c.AutosaveDebounceMS = d.AutosaveDebounceMS
	}
	if c.MediaGroupDebounceMS <= 0 {
		c.MediaGroupDebounceMS = d.MediaGroupDebounceMS
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = d.RequestTimeoutSeconds
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = d.HTTPTimeoutSeconds
	}
	if c.CallTimeoutSeconds <= 0 {
		c.CallTimeoutSeconds = d.CallTimeoutSeconds
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = d.DataDir
	}
}

func (c Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return c.RequireGemini()
}

// Location is the zone the daily usage counter rolls over in.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.UsageTimezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.UsageTimezone)
	if err != nil {
		return nil, fmt.Errorf("load usage timezone %q: %w", c.UsageTimezone, err)
	}
	return loc, nil
}

func (c Config) ProductCooldown() time.Duration {
	return time.Duration(c.ProductCooldownSeconds) * time.Second
}

func (c Config) CharacterCooldown() time.Duration {
	return time.Duration(c.CharacterCooldownSeconds) * time.Second
}

func (c Config) AutosaveDebounce() time.Duration {
	return time.Duration(c.AutosaveDebounceMS) * time.Millisecond
}

func (c Config) MediaGroupDebounce() time.Duration {
	return time.Duration(c.MediaGroupDebounceMS) * time.Millisecond
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c Config) VerifyCacheTTL() time.Duration {
	return time.Duration(c.VerifyCacheMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
