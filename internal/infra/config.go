package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Asset store backends selectable through ASSET_STORE.
const (
	AssetStoreDropbox = "dropbox"
	AssetStoreS3      = "s3"
	AssetStoreGCS     = "gcs"
	AssetStoreLocal   = "local"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	AllowedOrigins   []string

	VSAIAPIKey  string
	VSAIBaseURL string
	VSAITimeout time.Duration

	AssetStore            string
	DropboxAccessToken    string
	DropboxAPIBaseURL     string
	DropboxContentBaseURL string
	S3Bucket              string
	S3Region              string
	S3Endpoint            string
	S3PathStyle           bool
	GCSBucket             string
	SignedLinkTTL         time.Duration
	StoragePath           string
	StorageBaseURL        string
	DownloadMaxBytes      int64

	StripeSecretKey     string
	StripeWebhookSecret string
	SiteURL             string
	ProductName         string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitCapacity int
	RateLimitRefill   float64
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		VSAIAPIKey:  strings.TrimSpace(os.Getenv("VSAI_API_KEY")),
		VSAIBaseURL: getEnv("VSAI_BASE_URL", "https://api.virtualstagingai.app/v1"),
		VSAITimeout: getEnvDuration("VSAI_TIMEOUT", 3*time.Minute),

		AssetStore:            strings.ToLower(getEnv("ASSET_STORE", AssetStoreDropbox)),
		DropboxAccessToken:    strings.TrimSpace(os.Getenv("DROPBOX_ACCESS_TOKEN")),
		DropboxAPIBaseURL:     getEnv("DROPBOX_API_BASE_URL", "https://api.dropboxapi.com/2"),
		DropboxContentBaseURL: getEnv("DROPBOX_CONTENT_BASE_URL", "https://content.dropboxapi.com/2"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		S3Region:              getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3PathStyle:           getEnvBool("S3_PATH_STYLE", false),
		GCSBucket:             os.Getenv("GCS_BUCKET"),
		SignedLinkTTL:         getEnvDuration("SIGNED_LINK_TTL", 7*24*time.Hour),
		StoragePath:           getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:        getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		DownloadMaxBytes:      int64(getEnvInt("DOWNLOAD_MAX_BYTES", 25*1024*1024)),

		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		SiteURL:             strings.TrimRight(os.Getenv("WIX_SITE_URL"), "/"),
		ProductName:         getEnv("PRODUCT_NAME", "Virtual Staging Image"),

		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.2),
	}

	switch cfg.AssetStore {
	case AssetStoreDropbox:
		if cfg.DropboxAccessToken == "" {
			return nil, fmt.Errorf("DROPBOX_ACCESS_TOKEN is required when ASSET_STORE=%s", cfg.AssetStore)
		}
	case AssetStoreS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when ASSET_STORE=%s", cfg.AssetStore)
		}
	case AssetStoreGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required when ASSET_STORE=%s", cfg.AssetStore)
		}
	case AssetStoreLocal:
	default:
		return nil, fmt.Errorf("unsupported ASSET_STORE %q", cfg.AssetStore)
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
