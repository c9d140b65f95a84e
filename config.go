package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults, overridable through the environment (or a .env file).
const (
	// Server
	DefaultPort        = "5000"
	DefaultDownloadDir = "downloads"

	// Extraction pipeline. The target codec is fixed; the bitrate can be tuned.
	AudioFormat         = "mp3"
	DefaultAudioQuality = "192K"
	ProgressInterval    = 500 * time.Millisecond

	// Generated filenames
	TitlePrefixLength = 50

	// Rate Limiting
	RequestsPerSecond = 100
	BurstSize         = 200

	// Redis Configuration
	RedisAddr     = "localhost:6379"
	RedisPassword = ""
	RedisDB       = 0

	// File retention
	RetentionHours = 24
	SweepInterval  = 1 * time.Hour

	// Stream keep-alive comment interval
	KeepAliveInterval = 15 * time.Second
)

// Config holds the process configuration, built once in main.
type Config struct {
	Port          string
	DownloadDir   string
	YouTubeAPIKey string

	InstallYTDLP   bool
	AudioQuality   string
	ConvertTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Retention     time.Duration
	SweepInterval time.Duration

	RequestsPerSecond int
	BurstSize         int

	LogLevel  string
	LogFormat string
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", DefaultPort),
		DownloadDir:   getEnv("DOWNLOAD_DIR", DefaultDownloadDir),
		YouTubeAPIKey: os.Getenv("YOUTUBE_API_KEY"),

		InstallYTDLP:   getEnvAsBool("YTDLP_INSTALL", false),
		AudioQuality:   getEnv("AUDIO_QUALITY", DefaultAudioQuality),
		ConvertTimeout: getEnvAsDuration("CONVERT_TIMEOUT", 0),

		RedisAddr:     getEnv("REDIS_ADDR", RedisAddr),
		RedisPassword: getEnv("REDIS_PASSWORD", RedisPassword),
		RedisDB:       getEnvAsInt("REDIS_DB", RedisDB),

		Retention:     getEnvAsDuration("RETENTION", RetentionHours*time.Hour),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", SweepInterval),

		RequestsPerSecond: getEnvAsInt("REQUESTS_PER_SECOND", RequestsPerSecond),
		BurstSize:         getEnvAsInt("BURST_SIZE", BurstSize),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("90m", "24h") and "0" to disable.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}
