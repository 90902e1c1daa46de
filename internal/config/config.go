package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	WhatsAppAPIVersion string
	WhatsAppToken      string
	WhatsAppAppSecret  string
	WebhookVerifyToken string

	// Voiceflow runtime
	VoiceflowAPIKey    string
	VoiceflowVersionID string
	VoiceflowProjectID string
	VoiceflowTimeout   time.Duration
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	PathMaxDepth       int

	// Delivery queue
	QueueCapacity   int
	MaxInFlight     int
	FallbackMessage string

	// Speech-to-text (optional; voice notes are dropped when unset)
	TranscriptionAPIKey string
	TranscriptionModel  string

	// Transcript store (optional)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WhatsAppAPIVersion: getEnv("WHATSAPP_VERSION", "v17.0"),
		WhatsAppToken:      getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppAppSecret:  getEnv("WHATSAPP_APP_SECRET", ""),
		WebhookVerifyToken: getEnv("VERIFY_TOKEN", "voiceflow"),

		VoiceflowAPIKey:    getEnv("VF_API_KEY", ""),
		VoiceflowVersionID: getEnv("VF_VERSION_ID", "development"),
		VoiceflowProjectID: getEnv("VF_PROJECT_ID", ""),
		VoiceflowTimeout:   getEnvAsDuration("VF_TIMEOUT", 15*time.Second),
		RetryMaxAttempts:   getEnvAsInt("VF_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     getEnvAsDuration("VF_RETRY_BASE_DELAY", time.Second),
		PathMaxDepth:       getEnvAsInt("VF_PATH_MAX_DEPTH", 5),

		QueueCapacity:   getEnvAsInt("QUEUE_CAPACITY", 256),
		MaxInFlight:     getEnvAsInt("MAX_IN_FLIGHT", 10),
		FallbackMessage: getEnv("FALLBACK_MESSAGE", "We are experiencing a technical difficulty, please try again later."),

		TranscriptionAPIKey: getEnv("STT_API_KEY", ""),
		TranscriptionModel:  getEnv("STT_MODEL", "whisper-1"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
