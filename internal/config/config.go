package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the web and worker binaries read from the environment.
type Config struct {
	Bunny BunnyConfig

	DatabaseDriver string
	DatabaseURL    string

	RateLimitBackend string
	RateLimitTable   string
	RateLimitWindow  time.Duration
	RateLimitMax     int64

	ThumbnailBackend  string
	S3ThumbnailBucket string

	SQSQueueURL string
	AWSRegion   string

	CaptionWorkers        int
	CaptionQueueSize      int
	CaptionJobTimeout     time.Duration
	TranscriptTierTimeout time.Duration

	ActorHeader string
	CORSOrigins []string
	LogLevel    slog.Level
}

type BunnyConfig struct {
	StreamBaseURL      string
	StorageBaseURL     string
	CDNURL             string
	EmbedURL           string
	CaptionCDNTemplate string
	LibraryID          string
	CollectionID       string
	StreamAccessKey    string
	StorageAccessKey   string
}

// ErrMissingEnv is returned by Load when one or more required variables are unset.
var ErrMissingEnv = errors.New("missing required environment variables")

// GetEnv returns env var or default when empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads an optional .env file and then the process environment. All
// required variables are checked together so a misconfigured deployment
// reports every missing name at once.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		Bunny: BunnyConfig{
			StreamBaseURL:      strings.TrimRight(required("BUNNY_STREAM_BASE_URL"), "/"),
			StorageBaseURL:     strings.TrimRight(required("BUNNY_STORAGE_BASE_URL"), "/"),
			LibraryID:          required("BUNNY_LIBRARY_ID"),
			StreamAccessKey:    required("BUNNY_STREAM_ACCESS_KEY"),
			StorageAccessKey:   required("BUNNY_STORAGE_ACCESS_KEY"),
			CDNURL:             strings.TrimRight(GetEnv("BUNNY_CDN_URL", "https://snapcast-pull.b-cdn.net"), "/"),
			EmbedURL:           strings.TrimRight(GetEnv("BUNNY_EMBED_URL", "https://iframe.mediadelivery.net/embed"), "/"),
			CaptionCDNTemplate: GetEnv("BUNNY_CAPTION_CDN_TEMPLATE", "https://vz-{prefix}.b-cdn.net/{asset}/captions/{lang}.vtt"),
			CollectionID:       os.Getenv("BUNNY_COLLECTION_ID"),
		},
		DatabaseDriver:    GetEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:       GetEnv("DATABASE_URL", "snapcast.db"),
		RateLimitBackend:  GetEnv("RATE_LIMIT_BACKEND", "sql"),
		RateLimitTable:    GetEnv("RATE_LIMIT_TABLE", "snapcast-rate-limits"),
		ThumbnailBackend:  GetEnv("THUMBNAIL_BACKEND", "bunny"),
		S3ThumbnailBucket: os.Getenv("S3_THUMBNAIL_BUCKET"),
		SQSQueueURL:       os.Getenv("SQS_QUEUE_URL"),
		AWSRegion:         GetEnv("AWS_REGION", "us-west-1"),
		ActorHeader:       GetEnv("ACTOR_HEADER", "X-Actor-ID"),
	}

	for _, origin := range strings.Split(GetEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	var err error
	if cfg.RateLimitWindow, err = durationEnv("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = int64Env("RATE_LIMIT_MAX", 2); err != nil {
		return nil, err
	}
	if cfg.CaptionJobTimeout, err = durationEnv("CAPTION_JOB_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TranscriptTierTimeout, err = durationEnv("TRANSCRIPT_TIER_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	workers, err := int64Env("CAPTION_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cfg.CaptionWorkers = int(workers)
	queue, err := int64Env("CAPTION_QUEUE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	cfg.CaptionQueueSize = int(queue)

	if err := cfg.LogLevel.UnmarshalText([]byte(GetEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if cfg.ThumbnailBackend == "s3" && cfg.S3ThumbnailBucket == "" {
		return nil, fmt.Errorf("%w: S3_THUMBNAIL_BUCKET (required when THUMBNAIL_BACKEND=s3)", ErrMissingEnv)
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, v)
	}
	return d, nil
}

func int64Env(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
	}
	return n, nil
}
