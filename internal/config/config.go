package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGateway = "gateway"
	ProviderGemini  = "gemini"

	DefaultSystemPrompt = "You are a helpful assistant that can answer questions and help with tasks"
)

type Config struct {
	// Server
	Port string
	Env  string

	// AI Gateway
	GatewayProvider string
	GatewayAPIKey   string
	GatewayBaseURL  string

	// Gemini (alternative provider)
	GeminiAPIKey       string
	GeminiDefaultModel string

	// Chat
	SystemPrompt    string
	ChatMaxDuration time.Duration
	ChatRateLimit   int
	ChatRateWindow  time.Duration

	// Optional backing services
	RedisURL      string
	DatabaseURL   string
	MigrationsDir string

	// JWT (chat auth is enabled only when set)
	JWTSecret string

	// Model catalog
	ModelsFile string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		GatewayProvider:    getEnvOrDefault("GATEWAY_PROVIDER", ProviderGateway),
		GatewayAPIKey:      getFirstEnv("AI_GATEWAY_API_KEY", "NUXT_AI_GATEWAY_API_KEY"),
		GatewayBaseURL:     getEnvOrDefault("GATEWAY_BASE_URL", "https://ai-gateway.vercel.sh/v1"),
		GeminiAPIKey:       getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiDefaultModel: getEnvOrDefault("GEMINI_DEFAULT_MODEL", "gemini-2.0-flash"),
		SystemPrompt:       getEnvOrDefault("CHAT_SYSTEM_PROMPT", DefaultSystemPrompt),
		ChatMaxDuration:    getEnvAsDurationOrDefault("CHAT_MAX_DURATION", 30*time.Second),
		ChatRateLimit:      getEnvAsIntOrDefault("CHAT_RATE_LIMIT", 30),
		ChatRateWindow:     getEnvAsDurationOrDefault("CHAT_RATE_WINDOW", time.Minute),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		JWTSecret:          getEnvOrDefault("JWT_SECRET", ""),
		ModelsFile:         getEnvOrDefault("MODELS_FILE", ""),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg
}

// ProviderAPIKey returns the credential of the configured provider. An empty
// value means chat requests must be refused with a configuration error.
func (c *Config) ProviderAPIKey() string {
	if c.GatewayProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.GatewayAPIKey
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getFirstEnv returns the first non-empty value among keys.
func getFirstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
