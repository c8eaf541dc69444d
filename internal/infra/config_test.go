package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaultsForDropbox(t *testing.T) {
	t.Setenv("ASSET_STORE", "")
	t.Setenv("DROPBOX_ACCESS_TOKEN", "token")
	t.Setenv("PORT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("VSAI_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AssetStore != AssetStoreDropbox {
		t.Fatalf("AssetStore = %q, want %q", cfg.AssetStore, AssetStoreDropbox)
	}
	if cfg.VSAIBaseURL != "https://api.virtualstagingai.app/v1" {
		t.Fatalf("VSAIBaseURL mismatch: %q", cfg.VSAIBaseURL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL mismatch: %q", cfg.StorageBaseURL)
	}
}

func TestLoadConfigRequiresBackendSettings(t *testing.T) {
	tests := []struct {
		name  string
		store string
		env   map[string]string
	}{
		{name: "dropbox without token", store: "dropbox", env: map[string]string{"DROPBOX_ACCESS_TOKEN": ""}},
		{name: "s3 without bucket", store: "s3", env: map[string]string{"S3_BUCKET": ""}},
		{name: "gcs without bucket", store: "gcs", env: map[string]string{"GCS_BUCKET": ""}},
		{name: "unknown store", store: "ftp"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ASSET_STORE", tc.store)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadConfigParsesTypedValues(t *testing.T) {
	t.Setenv("ASSET_STORE", "S3")
	t.Setenv("S3_BUCKET", "stagings")
	t.Setenv("S3_PATH_STYLE", "true")
	t.Setenv("SIGNED_LINK_TTL", "2h")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ")
	t.Setenv("RATE_LIMIT_REFILL_PER_SEC", "1.5")
	t.Setenv("WIX_SITE_URL", "https://shop.example.com/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AssetStore != AssetStoreS3 || !cfg.S3PathStyle {
		t.Fatalf("s3 settings not parsed: %+v", cfg)
	}
	if cfg.SignedLinkTTL != 2*time.Hour {
		t.Fatalf("SignedLinkTTL = %s", cfg.SignedLinkTTL)
	}
	if cfg.StorageBaseURL != "http://localhost:1919/static" {
		t.Fatalf("StorageBaseURL = %q", cfg.StorageBaseURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("AllowedOrigins = %#v", cfg.AllowedOrigins)
	}
	if cfg.RateLimitRefill != 1.5 {
		t.Fatalf("RateLimitRefill = %v", cfg.RateLimitRefill)
	}
	if cfg.SiteURL != "https://shop.example.com" {
		t.Fatalf("SiteURL = %q", cfg.SiteURL)
	}
}
