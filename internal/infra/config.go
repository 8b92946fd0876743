package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store driver selectors. Memory keeps everything in process and is the
// development/test default; postgres is the production driver.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	StoreDriver string
	DatabaseURL string

	UploadDir      string
	MaxUploadBytes int64

	WorkerCount   int
	QueueCapacity int
	MaxRetries    int
	RetryBackoff  time.Duration

	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration

	FFmpegBin    string
	WhisperBin   string
	WhisperModel string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverMemory),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 50_000_000),

		WorkerCount:   getEnvInt("WORKER_COUNT", 2),
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 16),
		MaxRetries:    getEnvInt("MAX_RETRIES", 2),
		RetryBackoff:  time.Millisecond * time.Duration(getEnvInt("RETRY_BACKOFF_MS", 500)),

		ExtractTimeout:    time.Second * time.Duration(getEnvInt("EXTRACT_TIMEOUT_SECONDS", 60)),
		TranscribeTimeout: time.Second * time.Duration(getEnvInt("TRANSCRIBE_TIMEOUT_SECONDS", 1800)),

		FFmpegBin:    getEnv("FFMPEG_BIN", "ffmpeg"),
		WhisperBin:   getEnv("WHISPER_BIN", "whisper-cli"),
		WhisperModel: getEnv("WHISPER_MODEL", "./models/ggml-base.bin"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if cfg.QueueCapacity < 1 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be at least 1")
	}
	if cfg.MaxUploadBytes < 1 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}
