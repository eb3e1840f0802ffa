package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Community store configuration
	CommunityStore   string // "file" or "azure"
	CommunitiesDir   string
	StorageAccount   string
	StorageContainer string

	// Telegram configuration
	TelegramBotToken string
	TelegramAPIURL   string
	TelegramMode     string // "webhook" or "polling"
	WebAppURL        string

	// Twilio configuration
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioAPIURL     string
	VoiceLanguage    string
	VoiceName        string

	// Alert pipeline tuning
	IntentTTL       time.Duration
	DispatchWorkers int
	ChannelTimeout  time.Duration
	SweepSchedule   string

	// Operator report configuration
	OperatorEmail string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		CommunityStore:   strings.ToLower(getEnv("COMMUNITY_STORE", "file")),
		CommunitiesDir:   getEnv("COMMUNITIES_DIR", "comunidades"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "communities"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramMode:     strings.ToLower(getEnv("TELEGRAM_MODE", "webhook")),
		WebAppURL:        getEnv("WEBAPP_URL", ""),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioAPIURL:     getEnv("TWILIO_API_URL", "https://api.twilio.com"),
		VoiceLanguage:    getEnv("VOICE_LANGUAGE", "es-ES"),
		VoiceName:        getEnv("VOICE_NAME", "woman"),

		IntentTTL:       getDurationEnv("INTENT_TTL", 10*time.Minute),
		DispatchWorkers: getIntEnv("DISPATCH_WORKERS", 8),
		ChannelTimeout:  getDurationEnv("CHANNEL_TIMEOUT", 10*time.Second),
		SweepSchedule:   getEnv("SWEEP_SCHEDULE", "0 * * * * *"),

		OperatorEmail: getEnv("OPERATOR_EMAIL", ""),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getIntEnv("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	if c.TelegramMode != "webhook" && c.TelegramMode != "polling" {
		return fmt.Errorf("TELEGRAM_MODE must be 'webhook' or 'polling'")
	}

	switch c.CommunityStore {
	case "file":
		if c.CommunitiesDir == "" {
			return fmt.Errorf("COMMUNITIES_DIR is required when COMMUNITY_STORE is 'file'")
		}
	case "azure":
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when COMMUNITY_STORE is 'azure'")
		}
	default:
		return fmt.Errorf("COMMUNITY_STORE must be 'file' or 'azure'")
	}

	twilioSet := 0
	for _, v := range []string{c.TwilioAccountSID, c.TwilioAuthToken, c.TwilioFromNumber} {
		if v != "" {
			twilioSet++
		}
	}
	if twilioSet != 0 && twilioSet != 3 {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set together")
	}

	if c.OperatorEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when OPERATOR_EMAIL is set")
		}
	}

	if c.IntentTTL <= 0 {
		return fmt.Errorf("INTENT_TTL must be positive")
	}

	if c.DispatchWorkers <= 0 {
		return fmt.Errorf("DISPATCH_WORKERS must be positive")
	}

	if c.ChannelTimeout <= 0 {
		return fmt.Errorf("CHANNEL_TIMEOUT must be positive")
	}

	return nil
}

// VoiceEnabled reports whether Twilio credentials are configured
func (c *Config) VoiceEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
