package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config collects everything the server reads from the environment.
type Config struct {
	Addr           string
	MaxUploadBytes int64

	EngineDir      string
	EngineAssetURL string

	// TranscribeEndpoint is where the pipeline submits optimized audio.
	// Empty means "this server's own /api/transcribe".
	TranscribeEndpoint string

	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	SessionTTL      time.Duration
	CleanupInterval time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:               envOrDefault("APP_ADDR", ":8080"),
		MaxUploadBytes:     envInt64OrDefault("MAX_UPLOAD_BYTES", 500*1024*1024),
		EngineDir:          envOrDefault("ENGINE_DIR", "engine"),
		EngineAssetURL:     os.Getenv("ENGINE_ASSET_URL"),
		TranscribeEndpoint: os.Getenv("TRANSCRIBE_ENDPOINT"),
		Provider:           envOrDefault("INFERENCE_PROVIDER", "gemini"),
		GeminiAPIKey:       os.Getenv("API_KEY"),
		GeminiModel:        envOrDefault("GEMINI_MODEL", "gemini-3-flash-preview"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		SessionTTL:         envDurationOrDefault("SESSION_TTL", 24*time.Hour),
		CleanupInterval:    envDurationOrDefault("CLEANUP_INTERVAL", 30*time.Minute),
	}
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt64OrDefault(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
