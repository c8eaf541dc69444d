// Package bootstrap assembles the service's collaborators from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"roomstaging/internal/assetstore"
	"roomstaging/internal/fetch"
	"roomstaging/internal/infra"
	"roomstaging/internal/middleware"
	"roomstaging/internal/payment"
	"roomstaging/internal/providers/dropbox"
	"roomstaging/internal/providers/gcsstore"
	"roomstaging/internal/providers/s3store"
	"roomstaging/internal/providers/vsai"
	"roomstaging/internal/storage"
)

// Components are the long-lived clients shared by every request. They are
// built once per process.
type Components struct {
	Store    *assetstore.Store
	Files    *storage.FileStore
	Renders  *vsai.Client
	Fetcher  *fetch.Fetcher
	Payments *payment.Gate
}

// Build wires the configured asset store, rendering client, downloader and
// payment gate.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Components, error) {
	provider, files, err := NewAssetProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	renders, err := vsai.NewClient(vsai.Options{
		APIKey:         cfg.VSAIAPIKey,
		BaseURL:        cfg.VSAIBaseURL,
		Logger:         logger,
		RequestTimeout: cfg.VSAITimeout,
	})
	if err != nil {
		return nil, err
	}
	if !renders.HasCredentials() {
		logger.Warn().Msg("VSAI_API_KEY not set; rendering endpoints will fail")
	}

	return &Components{
		Store:   assetstore.New(provider, logger),
		Files:   files,
		Renders: renders,
		Fetcher: fetch.New(&http.Client{Timeout: 2 * time.Minute}, cfg.DownloadMaxBytes),
		Payments: payment.New(payment.Options{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SiteURL:       cfg.SiteURL,
			ProductName:   cfg.ProductName,
			Logger:        logger,
		}),
	}, nil
}

// NewAssetProvider selects the backend named by ASSET_STORE. The file store
// is returned as well for the local backend so it can be served.
func NewAssetProvider(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (assetstore.Provider, *storage.FileStore, error) {
	switch cfg.AssetStore {
	case infra.AssetStoreDropbox:
		client, err := dropbox.NewClient(dropbox.Options{
			AccessToken:    cfg.DropboxAccessToken,
			APIBaseURL:     cfg.DropboxAPIBaseURL,
			ContentBaseURL: cfg.DropboxContentBaseURL,
			Logger:         logger,
		})
		return client, nil, err
	case infra.AssetStoreS3:
		store, err := s3store.New(ctx, s3store.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			LinkTTL:   cfg.SignedLinkTTL,
			Logger:    logger,
		})
		return store, nil, err
	case infra.AssetStoreGCS:
		store, err := gcsstore.New(ctx, gcsstore.Options{
			Bucket:  cfg.GCSBucket,
			LinkTTL: cfg.SignedLinkTTL,
			Logger:  logger,
		})
		return store, nil, err
	case infra.AssetStoreLocal:
		files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		return files, files, err
	default:
		return nil, nil, fmt.Errorf("bootstrap: unsupported asset store %q", cfg.AssetStore)
	}
}

// NewRateLimiter returns a Redis-backed limiter, or nil when REDIS_ADDR is
// unset. The client is returned so the caller can close it.
func NewRateLimiter(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (middleware.Limiter, *redis.Client) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; rate limiter will fail open")
	}
	return middleware.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour), client
}
