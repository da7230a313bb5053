package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fdg312/adreport/internal/logger"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

const (
	StorageModeMemory   = "memory"
	StorageModeMongo    = "mongo"
	StorageModePostgres = "postgres"
	StorageModeAuto     = "auto"
)

const (
	JobCacheMemory = "memory"
	JobCacheRedis  = "redis"
	JobCacheNone   = "none"
)

const (
	ReplaceSwap     = "swap"
	ReplaceTruncate = "truncate"
)

const (
	CoercionTolerant = "tolerant"
	CoercionStrict   = "strict"
)

const (
	AuthModeNone = "none"
	AuthModeDev  = "dev"
	AuthModeJWT  = "jwt"
)

type S3Config struct {
	Endpoint          string
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	PublicBaseURL     string
	PresignTTLSeconds int
	PreferPublicURL   bool
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "S3_REGION")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

func (c S3Config) Diagnostics() (level string, code string, msg string) {
	allEmpty := strings.TrimSpace(c.Endpoint) == "" &&
		strings.TrimSpace(c.Region) == "" &&
		strings.TrimSpace(c.Bucket) == "" &&
		strings.TrimSpace(c.AccessKeyID) == "" &&
		strings.TrimSpace(c.SecretAccessKey) == ""

	if allEmpty {
		return "INFO", "s3_not_configured", "not configured (all empty)"
	}

	missing := c.MissingRequired()
	if len(missing) > 0 {
		return "WARN", "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}

	return "INFO", "s3_ready", "ready"
}

// DiagnosticsSummary returns a detailed summary for logging (no secrets)
func (c S3Config) DiagnosticsSummary() string {
	accessKeyStatus := "not set"
	if strings.TrimSpace(c.AccessKeyID) != "" {
		accessKeyStatus = "set"
	}
	secretKeyStatus := "not set"
	if strings.TrimSpace(c.SecretAccessKey) != "" {
		secretKeyStatus = "set"
	}

	return fmt.Sprintf("endpoint=%s region=%s bucket=%s public_base_url=%s presign_ttl=%ds prefer_public_url=%t access_key_id=%s secret_access_key=%s",
		nonEmptyOrDash(c.Endpoint),
		nonEmptyOrDash(c.Region),
		nonEmptyOrDash(c.Bucket),
		nonEmptyOrDash(c.PublicBaseURL),
		c.PresignTTLSeconds,
		c.PreferPublicURL,
		accessKeyStatus,
		secretKeyStatus,
	)
}

func nonEmptyOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

type BlobConfig struct {
	Mode string // local|s3|auto
	S3   S3Config
}

// Config содержит конфигурацию приложения
type Config struct {
	Env  string // local | staging | prod
	Port int
	Log  logger.Config

	// Storage
	StorageMode   string // memory | mongo | postgres | auto
	MongoURI      string
	MongoDatabase string

	// Database
	DatabaseURL       string // runtime connection (resolved: pooled > url > direct)
	DatabaseURLRaw    string // DATABASE_URL as provided
	DatabaseURLPooled string // DATABASE_URL_POOLED as provided
	DatabaseURLDirect string // for migrations / DDL (may be empty)

	// Job status cache
	JobCacheMode       string // memory | redis | none
	RedisURL           string
	JobCacheTTLSeconds int

	// Import
	ImportBatchSize       int
	ImportQueueSize       int
	ImportMaxMB           int
	ImportReplaceStrategy string // swap | truncate
	CoercionMode          string // tolerant | strict

	// Reports
	ReportsDefaultLimit int
	ReportsMaxLimit     int
	ExportMaxRows       int

	// CORS
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Rate Limiting
	RateLimitRPS   int
	RateLimitBurst int

	Blob BlobConfig

	// Authentication
	AuthMode      string // none | dev | jwt
	AuthRequired  bool
	JWTSecret     string
	JWTIssuer     string
	JWTTTLMinutes int

	// Migrations
	RunMigrationsOnStartup bool
}

// ImportMaxBytes is the upload size cap in bytes.
func (c *Config) ImportMaxBytes() int64 {
	return int64(c.ImportMaxMB) << 20
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	// APP_ENV (fallback to ENV for backward compat, default: local)
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = "local"
	}

	// PORT (default: 8000)
	port := envInt("PORT", 8000)

	// ---------- Logging ----------
	logCfg, err := logger.LoadConfig()
	if err != nil {
		log.Printf("WARNING: %v, using default logging", err)
		logCfg = logger.Config{Level: "info", Format: "text", Output: "stdout"}
	}

	// ---------- Storage ----------
	storageMode := parseMode("STORAGE_MODE", StorageModeAuto,
		StorageModeMemory, StorageModeMongo, StorageModePostgres, StorageModeAuto)
	mongoURI := strings.TrimSpace(os.Getenv("MONGODB_URI"))
	mongoDatabase := strings.TrimSpace(os.Getenv("MONGODB_DATABASE"))
	if mongoDatabase == "" {
		mongoDatabase = "adtech_reports"
	}

	// ---------- Database ----------
	// Priority: DATABASE_URL_POOLED > DATABASE_URL > DATABASE_URL_DIRECT
	dbPooled := strings.TrimSpace(os.Getenv("DATABASE_URL_POOLED"))
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	dbDirect := strings.TrimSpace(os.Getenv("DATABASE_URL_DIRECT"))

	runtimeDB := dbPooled
	if runtimeDB == "" {
		runtimeDB = dbURL
	}
	if runtimeDB == "" {
		runtimeDB = dbDirect
	}

	// ---------- Migrations ----------
	runMigrationsOnStartup := parseBoolEnv("RUN_MIGRATIONS_ON_STARTUP")

	// ---------- Job cache ----------
	jobCacheMode := parseMode("JOB_CACHE_MODE", JobCacheMemory, JobCacheMemory, JobCacheRedis, JobCacheNone)
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if jobCacheMode == JobCacheRedis && redisURL == "" {
		log.Printf("WARNING: JOB_CACHE_MODE=redis without REDIS_URL, fallback to %s", JobCacheMemory)
		jobCacheMode = JobCacheMemory
	}
	jobCacheTTL := envInt("JOB_CACHE_TTL_SECONDS", 3600)
	if jobCacheTTL <= 0 {
		jobCacheTTL = 3600
	}

	// ---------- Import ----------
	importBatchSize := envInt("IMPORT_BATCH_SIZE", 1000)
	if importBatchSize <= 0 {
		importBatchSize = 1000
	}
	importQueueSize := envInt("IMPORT_QUEUE_SIZE", 16)
	if importQueueSize <= 0 {
		importQueueSize = 16
	}
	importMaxMB := envInt("IMPORT_MAX_MB", 50)
	if importMaxMB <= 0 {
		importMaxMB = 50
	}
	replaceStrategy := parseMode("IMPORT_REPLACE_STRATEGY", ReplaceSwap, ReplaceSwap, ReplaceTruncate)
	coercionMode := parseMode("COERCION_MODE", CoercionTolerant, CoercionTolerant, CoercionStrict)

	// ---------- Reports ----------
	reportsDefaultLimit := envInt("REPORTS_DEFAULT_LIMIT", 50)
	if reportsDefaultLimit <= 0 {
		reportsDefaultLimit = 50
	}
	reportsMaxLimit := envInt("REPORTS_MAX_LIMIT", 1000)
	if reportsMaxLimit < reportsDefaultLimit {
		reportsMaxLimit = reportsDefaultLimit
	}
	exportMaxRows := envInt("EXPORT_MAX_ROWS", 100000)
	if exportMaxRows <= 0 {
		exportMaxRows = 100000
	}

	// ---------- CORS ----------
	corsOrigins := parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), env)
	corsAllowCreds := parseBoolEnv("CORS_ALLOW_CREDENTIALS")

	// ---------- Rate Limiting ----------
	rateLimitRPS := envInt("RATE_LIMIT_RPS", 0)
	rateLimitBurst := envInt("RATE_LIMIT_BURST", 0)

	// ---------- Blob / S3 ----------
	blobMode := parseMode("BLOB_MODE", BlobModeLocal, BlobModeLocal, BlobModeS3, BlobModeAuto)

	// S3_PRESIGN_TTL_SECONDS (default: 900, enforce > 0)
	s3PresignTTL := envInt("S3_PRESIGN_TTL_SECONDS", 900)
	if s3PresignTTL <= 0 {
		s3PresignTTL = 900
	}

	s3Cfg := S3Config{
		Endpoint:          strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:            strings.TrimSpace(os.Getenv("S3_REGION")),
		Bucket:            strings.TrimSpace(os.Getenv("S3_BUCKET")),
		AccessKeyID:       strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
		SecretAccessKey:   strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
		PublicBaseURL:     strings.TrimSpace(os.Getenv("S3_PUBLIC_BASE_URL")),
		PresignTTLSeconds: s3PresignTTL,
		PreferPublicURL:   parseBoolEnv("S3_PREFER_PUBLIC_URL"),
	}

	// ---------- Auth ----------
	authMode := parseMode("AUTH_MODE", AuthModeNone, AuthModeNone, AuthModeDev, AuthModeJWT)
	authRequired := authMode != AuthModeNone && parseBoolEnv("AUTH_REQUIRED")

	// JWT_SECRET
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "change_me"
	}
	// Warn if using default in non-local environment
	if jwtSecret == "change_me" && env != "local" {
		log.Println("WARNING: JWT_SECRET is set to 'change_me' in non-local environment!")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "adreport"
	}

	// JWT_TTL_MINUTES (default: 1440 = 1 day)
	jwtTTLMinutes := envInt("JWT_TTL_MINUTES", 1440)

	return &Config{
		Env:  env,
		Port: port,
		Log:  logCfg,

		StorageMode:   storageMode,
		MongoURI:      mongoURI,
		MongoDatabase: mongoDatabase,

		DatabaseURL:       runtimeDB,
		DatabaseURLRaw:    dbURL,
		DatabaseURLPooled: dbPooled,
		DatabaseURLDirect: dbDirect,

		JobCacheMode:       jobCacheMode,
		RedisURL:           redisURL,
		JobCacheTTLSeconds: jobCacheTTL,

		ImportBatchSize:       importBatchSize,
		ImportQueueSize:       importQueueSize,
		ImportMaxMB:           importMaxMB,
		ImportReplaceStrategy: replaceStrategy,
		CoercionMode:          coercionMode,

		ReportsDefaultLimit: reportsDefaultLimit,
		ReportsMaxLimit:     reportsMaxLimit,
		ExportMaxRows:       exportMaxRows,

		CORSAllowedOrigins:   corsOrigins,
		CORSAllowCredentials: corsAllowCreds,

		RateLimitRPS:   rateLimitRPS,
		RateLimitBurst: rateLimitBurst,

		Blob: BlobConfig{Mode: blobMode, S3: s3Cfg},

		AuthMode:      authMode,
		AuthRequired:  authRequired,
		JWTSecret:     jwtSecret,
		JWTIssuer:     jwtIssuer,
		JWTTTLMinutes: jwtTTLMinutes,

		RunMigrationsOnStartup: runMigrationsOnStartup,
	}
}

// parseCORSOrigins parses CORS_ALLOWED_ORIGINS env var.
// In local mode, defaults to localhost origins if empty.
func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:3000", "http://localhost:5173"}
		}
		return nil // prod: deny by default
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// parseMode reads an enum env var, warning and falling back on unknown values.
func parseMode(key string, defaultVal string, allowed ...string) string {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if mode == "" {
		return defaultVal
	}
	for _, a := range allowed {
		if mode == a {
			return mode
		}
	}
	log.Printf("WARNING: unknown %s=%q, fallback to %s", key, mode, defaultVal)
	return defaultVal
}

// envInt reads an int env var with a default value.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
