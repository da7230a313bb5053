package config

import (
	"os"
	"testing"
)

var loadKeys = []string{
	"APP_ENV", "ENV", "PORT", "STORAGE_MODE", "MONGODB_DATABASE", "JOB_CACHE_MODE", "REDIS_URL",
	"IMPORT_BATCH_SIZE", "IMPORT_QUEUE_SIZE", "IMPORT_MAX_MB", "IMPORT_REPLACE_STRATEGY",
	"COERCION_MODE", "REPORTS_DEFAULT_LIMIT", "REPORTS_MAX_LIMIT", "AUTH_MODE", "AUTH_REQUIRED",
	"DATABASE_URL", "DATABASE_URL_POOLED", "DATABASE_URL_DIRECT", "CORS_ALLOWED_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range loadKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Env != "local" || cfg.Port != 8000 {
		t.Fatalf("expected local:8000, got %s:%d", cfg.Env, cfg.Port)
	}
	if cfg.StorageMode != StorageModeAuto {
		t.Errorf("expected storage mode auto, got %s", cfg.StorageMode)
	}
	if cfg.MongoDatabase != "adtech_reports" {
		t.Errorf("expected adtech_reports database, got %s", cfg.MongoDatabase)
	}
	if cfg.ImportBatchSize != 1000 {
		t.Errorf("expected batch size 1000, got %d", cfg.ImportBatchSize)
	}
	if cfg.ImportReplaceStrategy != ReplaceSwap || cfg.CoercionMode != CoercionTolerant {
		t.Errorf("unexpected import modes: %s/%s", cfg.ImportReplaceStrategy, cfg.CoercionMode)
	}
	if cfg.JobCacheMode != JobCacheMemory {
		t.Errorf("expected memory job cache, got %s", cfg.JobCacheMode)
	}
	if cfg.ImportMaxBytes() != 50<<20 {
		t.Errorf("expected 50MB cap, got %d", cfg.ImportMaxBytes())
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		t.Error("expected localhost CORS defaults in local env")
	}
}

func TestLoadFallsBackOnUnknownModes(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_MODE", "cassandra")
	t.Setenv("IMPORT_REPLACE_STRATEGY", "merge")
	t.Setenv("COERCION_MODE", "STRICT")
	t.Setenv("AUTH_MODE", "oauth")
	t.Setenv("IMPORT_BATCH_SIZE", "-5")

	cfg := Load()
	if cfg.StorageMode != StorageModeAuto {
		t.Errorf("expected auto fallback, got %s", cfg.StorageMode)
	}
	if cfg.ImportReplaceStrategy != ReplaceSwap {
		t.Errorf("expected swap fallback, got %s", cfg.ImportReplaceStrategy)
	}
	if cfg.CoercionMode != CoercionStrict {
		t.Errorf("expected strict (case-insensitive), got %s", cfg.CoercionMode)
	}
	if cfg.AuthMode != AuthModeNone || cfg.AuthRequired {
		t.Errorf("expected auth none, got %s required=%t", cfg.AuthMode, cfg.AuthRequired)
	}
	if cfg.ImportBatchSize != 1000 {
		t.Errorf("expected default batch size, got %d", cfg.ImportBatchSize)
	}
}

func TestLoadRedisCacheRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("JOB_CACHE_MODE", "redis")

	if cfg := Load(); cfg.JobCacheMode != JobCacheMemory {
		t.Fatalf("expected memory fallback without REDIS_URL, got %s", cfg.JobCacheMode)
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if cfg := Load(); cfg.JobCacheMode != JobCacheRedis {
		t.Fatalf("expected redis, got %s", cfg.JobCacheMode)
	}
}

func TestLoadDatabaseURLPriority(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL_DIRECT", "postgres://direct")
	t.Setenv("DATABASE_URL", "postgres://url")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://url" {
		t.Fatalf("expected DATABASE_URL for runtime, got %s", cfg.DatabaseURL)
	}

	t.Setenv("DATABASE_URL_POOLED", "postgres://pooled")
	if cfg := Load(); cfg.DatabaseURL != "postgres://pooled" {
		t.Fatalf("expected pooled URL for runtime, got %s", cfg.DatabaseURL)
	}
}
