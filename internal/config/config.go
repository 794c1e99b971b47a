package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort            = "8080"
	defaultTempDir         = "tmp/staging"
	defaultRetentionDays   = 15
	defaultCleanupInterval = 6 * time.Hour
	defaultSignedURLTTL    = 15 * time.Minute
)

// Config captures server runtime configuration.
type Config struct {
	Port        string
	DatabaseURL string
	APIKey      string

	GCSBucket          string
	GCSCredentialsPath string

	AWSRegion        string
	AnalysisQueueURL string
	VideoQueueURL    string
	ReportQueueURL   string
	RedisAddr        string

	TempDir         string
	RetentionDays   int
	CleanupInterval time.Duration
	SignedURLTTL    time.Duration
}

// Load reads environment variables into a Config structure.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("INGEST_SERVER_PORT", defaultPort),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		APIKey:             os.Getenv("INGEST_SERVICE_API_KEY"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsPath: os.Getenv("GCS_CREDENTIALS_PATH"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AnalysisQueueURL:   os.Getenv("ANALYSIS_QUEUE_URL"),
		VideoQueueURL:      os.Getenv("VIDEO_QUEUE_URL"),
		ReportQueueURL:     os.Getenv("REPORT_QUEUE_URL"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		TempDir:            getEnv("INGEST_TEMP_DIR", defaultTempDir),
		RetentionDays:      parseInt("RETENTION_DAYS", defaultRetentionDays),
		CleanupInterval:    parseDuration("CLEANUP_INTERVAL", defaultCleanupInterval),
		SignedURLTTL:       parseDuration("SIGNED_URL_TTL", defaultSignedURLTTL),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("INGEST_SERVICE_API_KEY is required")
	}
	if cfg.GCSBucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	if cfg.AnalysisQueueURL == "" || cfg.VideoQueueURL == "" || cfg.ReportQueueURL == "" {
		return nil, errors.New("ANALYSIS_QUEUE_URL, VIDEO_QUEUE_URL and REPORT_QUEUE_URL are required")
	}

	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if !filepath.IsAbs(cfg.TempDir) {
		cfg.TempDir = filepath.Join(os.TempDir(), cfg.TempDir)
	}

	return cfg, nil
}

// RetentionWindow is the soft-delete grace period.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return dur
}
