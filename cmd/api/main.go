package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/adreport/internal/config"
	"github.com/fdg312/adreport/internal/dbmigrate"
	"github.com/fdg312/adreport/internal/httpserver"
	"github.com/fdg312/adreport/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	printStartupBanner(cfg)

	if cfg.RunMigrationsOnStartup && dbmigrate.UsesPostgres(cfg) {
		dbURL, source, _, err := dbmigrate.SelectDatabaseURL(cfg, true)
		if err != nil {
			log.Fatalf("FATAL startup migrations: %v", err)
		}

		log.Printf("startup migrations: command=up using=%s", source)
		if err := dbmigrate.Run("up", dbURL, dbmigrate.DefaultMigrationsDir); err != nil {
			log.Fatalf("FATAL startup migrations failed: %v", err)
		}
		log.Printf("startup migrations: completed")
	}

	validateProductionConfig(cfg)

	appLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL logger: %v", err)
	}

	server, err := httpserver.New(cfg, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("failed to init server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			appLog.WithError(err).Error("server stopped")
		}
	case <-ctx.Done():
		appLog.Info("shutdown signal received, draining imports")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("shutdown incomplete")
		os.Exit(1)
	}
	appLog.Info("bye")
}

// printStartupBanner logs a one-time summary of the resolved configuration.
// Secrets are only reported as "set" / "not set".
func printStartupBanner(cfg *config.Config) {
	log.Println("========== Adtech Reporting API ==========")
	log.Printf("  env              = %s", cfg.Env)
	log.Printf("  port             = %d", cfg.Port)
	log.Printf("  log              = level=%s format=%s output=%s", cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)

	log.Println("---- storage ----")
	log.Printf("  storage_mode     = %s", cfg.StorageMode)
	log.Printf("  mongodb_uri      = %s", setOrNot(cfg.MongoURI))
	log.Printf("  mongodb_database = %s", nonEmptyOrDash(cfg.MongoDatabase))
	log.Printf("  runtime_url      = %s", describeDBURL(cfg.DatabaseURL, cfg.DatabaseURLPooled))
	log.Printf("  direct           = %s", setOrNot(cfg.DatabaseURLDirect))
	log.Printf("  migrations_on_startup = %t", cfg.RunMigrationsOnStartup)

	log.Println("---- import ----")
	log.Printf("  batch_size       = %d", cfg.ImportBatchSize)
	log.Printf("  queue_size       = %d", cfg.ImportQueueSize)
	log.Printf("  max_upload       = %d MB", cfg.ImportMaxMB)
	log.Printf("  replace_strategy = %s", cfg.ImportReplaceStrategy)
	log.Printf("  coercion         = %s", cfg.CoercionMode)
	log.Printf("  job_cache        = %s (ttl=%ds, redis_url=%s)", cfg.JobCacheMode, cfg.JobCacheTTLSeconds, setOrNot(cfg.RedisURL))

	log.Println("---- reports ----")
	log.Printf("  default_limit    = %d", cfg.ReportsDefaultLimit)
	log.Printf("  max_limit        = %d", cfg.ReportsMaxLimit)
	log.Printf("  export_max_rows  = %d", cfg.ExportMaxRows)

	log.Println("---- auth ----")
	log.Printf("  auth_mode        = %s", cfg.AuthMode)
	log.Printf("  auth_required    = %t", cfg.AuthRequired)
	log.Printf("  jwt_secret       = %s", secretStatus(cfg.JWTSecret, "change_me"))

	log.Println("---- blob ----")
	log.Printf("  blob_mode        = %s", cfg.Blob.Mode)
	if cfg.Blob.Mode != config.BlobModeLocal {
		log.Printf("  s3: %s", cfg.Blob.S3.DiagnosticsSummary())
	}

	log.Println("==========================================")
}

// validateProductionConfig performs fatal checks that only matter in non-local envs.
func validateProductionConfig(cfg *config.Config) {
	isProd := cfg.Env == "production" || cfg.Env == "prod" || cfg.Env == "staging"

	if cfg.Blob.Mode == config.BlobModeS3 {
		if missing := cfg.Blob.S3.MissingRequired(); len(missing) > 0 {
			log.Fatalf("FATAL blob: BLOB_MODE=s3 but S3 config is incomplete, missing: %s", strings.Join(missing, ", "))
		}
	}

	if cfg.StorageMode == config.StorageModeMongo && cfg.MongoURI == "" {
		log.Fatal("FATAL storage: STORAGE_MODE=mongo but MONGODB_URI is not set")
	}
	if cfg.StorageMode == config.StorageModePostgres && cfg.DatabaseURL == "" {
		log.Fatal("FATAL storage: STORAGE_MODE=postgres but no DATABASE_URL is set")
	}

	if isProd && cfg.AuthRequired && cfg.JWTSecret == "change_me" {
		log.Fatalf("FATAL auth: JWT_SECRET must not be 'change_me' in %s with AUTH_REQUIRED=1", cfg.Env)
	}

	if isProd && cfg.StorageMode == config.StorageModeMemory {
		log.Printf("WARNING storage: in-memory storage in %s loses data on restart", cfg.Env)
	}
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func nonEmptyOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func secretStatus(v, insecureDefault string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "not set"
	}
	if v == insecureDefault {
		return fmt.Sprintf("set (DEFAULT, insecure '%s')", insecureDefault)
	}
	return "set (custom)"
}

func describeDBURL(runtime, pooled string) string {
	if runtime == "" {
		return "not set"
	}
	if pooled != "" && runtime == pooled {
		return "set (via DATABASE_URL_POOLED)"
	}
	return "set"
}
