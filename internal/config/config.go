package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds application configuration for both the profile/relay server
// and the reader client.
type Config struct {
	// Server
	ServerPort         string
	DatabaseType       string
	DatabasePath       string
	DatabaseURL        string
	JWTSecret          string
	TokenTTL           time.Duration
	AuthRateLimit      int
	AuthRateWindow     time.Duration
	FilterDisplayNames bool

	// Email
	AWSRegion    string
	SESFromEmail string
	SESFromName  string

	// Logging
	LogLevel  string
	LogFormat string

	// Reader client
	ServerURL      string
	GradingURL     string
	SettleDelay    time.Duration
	LeaveDebounce  time.Duration
	MaxRecording   time.Duration
	UploadTimeout  time.Duration
	TokenCachePath string
	ContentPath    string
	SpeechURL      string
	AudioDir       string
}

// DefaultJWTSecret is only suitable for local development.
const DefaultJWTSecret = "readalong-dev-secret"

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		ServerPort:         getEnv("PORT", "8080"),
		DatabaseType:       getEnv("DB_TYPE", "sqlite"),
		DatabasePath:       getEnv("DB_PATH", "./readalong.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", DefaultJWTSecret),
		TokenTTL:           getEnvDuration("TOKEN_TTL", 24*time.Hour),
		AuthRateLimit:      getEnvInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow:     getEnvDuration("AUTH_RATE_WINDOW", time.Minute),
		FilterDisplayNames: getEnvBool("FILTER_DISPLAY_NAMES", true),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "ReadAlong"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		ServerURL:      getEnv("READALONG_SERVER", "http://localhost:8080"),
		GradingURL:     getEnv("GRADING_URL", "http://localhost:8000"),
		SettleDelay:    getEnvDuration("SEED_DELAY", time.Second),
		LeaveDebounce:  getEnvDuration("LEAVE_DEBOUNCE", 3*time.Second),
		MaxRecording:   getEnvDuration("MAX_RECORDING", 5*time.Second),
		UploadTimeout:  getEnvDuration("UPLOAD_TIMEOUT", 30*time.Second),
		TokenCachePath: getEnv("READALONG_TOKEN_FILE", defaultTokenCachePath()),
		ContentPath:    getEnv("CONTENT_PATH", ""),
		SpeechURL:      getEnv("SPEECH_URL", ""),
		AudioDir:       getEnv("READALONG_AUDIO_DIR", defaultAudioDir()),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func defaultTokenCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".readalong-token.toml"
	}
	return filepath.Join(dir, "readalong", "token.toml")
}

func defaultAudioDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "readalong-speech")
	}
	return filepath.Join(dir, "readalong", "speech")
}
