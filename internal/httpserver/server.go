package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fdg312/adreport/internal/auth"
	"github.com/fdg312/adreport/internal/blob"
	"github.com/fdg312/adreport/internal/config"
	"github.com/fdg312/adreport/internal/ingest"
	"github.com/fdg312/adreport/internal/jobs"
	"github.com/fdg312/adreport/internal/reports"
	"github.com/fdg312/adreport/internal/storage"
	"github.com/fdg312/adreport/internal/storage/memory"
	"github.com/fdg312/adreport/internal/storage/mongo"
	"github.com/fdg312/adreport/internal/storage/postgres"
	"github.com/sirupsen/logrus"
)

// Server представляет HTTP сервер
type Server struct {
	config         *config.Config
	log            logrus.FieldLogger
	mux            *http.ServeMux
	storage        storage.Storage
	redis          *jobs.RedisCache
	imports        *ingest.Service
	authMiddleware *auth.Middleware
	http           *http.Server
}

// New создаёт сервер, подключает storage и регистрирует маршруты
func New(cfg *config.Config, log logrus.FieldLogger) (*Server, error) {
	s := &Server{
		config: cfg,
		log:    log,
		mux:    http.NewServeMux(),
	}

	s.initStorage()

	if err := s.routes(); err != nil {
		s.storage.Close()
		return nil, err
	}
	return s, nil
}

// initStorage выбирает backend по STORAGE_MODE. auto: mongo > postgres > memory.
func (s *Server) initStorage() {
	log := s.log.WithField("component", "storage")
	ctx := context.Background()

	mode := s.config.StorageMode
	if mode == config.StorageModeAuto || mode == "" {
		switch {
		case s.config.MongoURI != "":
			mode = config.StorageModeMongo
		case s.config.DatabaseURL != "":
			mode = config.StorageModePostgres
		default:
			mode = config.StorageModeMemory
		}
	}

	switch mode {
	case config.StorageModeMongo:
		log.Info("connecting to MongoDB...")
		st, err := mongo.New(ctx, s.config.MongoURI, s.config.MongoDatabase)
		if err == nil {
			log.WithField("database", s.config.MongoDatabase).Info("MongoDB connected")
			s.storage = st
			return
		}
		log.WithError(err).Warn("MongoDB unavailable, fallback to in-memory storage")

	case config.StorageModePostgres:
		log.Info("connecting to PostgreSQL...")
		st, err := postgres.New(ctx, s.config.DatabaseURL)
		if err == nil {
			log.Info("PostgreSQL connected")
			s.storage = st
			return
		}
		log.WithError(err).Warn("PostgreSQL unavailable, fallback to in-memory storage")

	default:
		log.Info("using in-memory storage")
	}

	s.storage = memory.New()
}

// initJobCache builds the status cache in front of the job store.
func (s *Server) initJobCache() jobs.Cache {
	ttl := time.Duration(s.config.JobCacheTTLSeconds) * time.Second
	log := s.log.WithField("component", "jobs")

	switch s.config.JobCacheMode {
	case config.JobCacheNone:
		log.Info("job cache disabled")
		return nil
	case config.JobCacheRedis:
		client, err := jobs.Connect(context.Background(), s.config.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, fallback to in-memory job cache")
			break
		}
		log.Info("job cache=redis")
		s.redis = jobs.NewRedisCache(client, ttl)
		return s.redis
	}

	log.Info("job cache=memory")
	return jobs.NewMemoryCache(ttl)
}

// routes регистрирует маршруты
func (s *Server) routes() error {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Auth
	authService := auth.NewService(s.config)
	authHandler := auth.NewHandlers(authService)
	s.authMiddleware = auth.NewMiddleware(s.config, authService, s.log)

	s.mux.HandleFunc("POST /api/auth/token", authHandler.HandleDevToken)

	// Import
	blobStore, blobMode, err := blob.NewBlobStore(s.config.Blob, s.log)
	if err != nil {
		return fmt.Errorf("failed to init blob store: %w", err)
	}
	s.log.WithField("blob_mode", blobMode).Debug("blob store ready")

	tracker := jobs.NewTracker(s.storage, s.initJobCache(), s.log)
	pipeline := ingest.NewPipeline(s.storage, tracker, ingest.PipelineOptions{
		BatchSize: s.config.ImportBatchSize,
		Replace:   s.config.ImportReplaceStrategy,
		Strict:    s.config.CoercionMode == config.CoercionStrict,
		BlobStore: blobStore,
	}, s.log)
	s.imports = ingest.NewService(tracker, pipeline, s.config.ImportQueueSize, s.config.ImportMaxBytes(), s.log)
	s.imports.Start()

	importHandler := ingest.NewHandlers(s.imports, s.config.ImportMaxBytes(), s.config.Blob.S3.PresignTTLSeconds)

	s.mux.HandleFunc("POST /api/data/import", importHandler.HandleImport)
	s.mux.HandleFunc("GET /api/data/import", importHandler.HandleList)
	s.mux.HandleFunc("GET /api/data/import/{job_id}", importHandler.HandleStatus)
	s.mux.HandleFunc("GET /api/data/import/{job_id}/source", importHandler.HandleSource)

	// Reports
	reportService := reports.NewService(s.storage, reports.Options{
		DefaultLimit:  s.config.ReportsDefaultLimit,
		MaxLimit:      s.config.ReportsMaxLimit,
		ExportMaxRows: s.config.ExportMaxRows,
	}, s.log)
	reportHandler := reports.NewHandlers(reportService)

	s.mux.HandleFunc("GET /api/data/count", reportHandler.HandleCount)
	s.mux.HandleFunc("GET /api/reports/dimensions", reportHandler.HandleDimensions)
	s.mux.HandleFunc("GET /api/reports/metrics", reportHandler.HandleMetrics)
	s.mux.HandleFunc("GET /api/reports/has_data", reportHandler.HandleHasData)
	s.mux.HandleFunc("POST /api/reports/query", reportHandler.HandleQuery)
	s.mux.HandleFunc("POST /api/reports/export", reportHandler.HandleExport)
	s.mux.HandleFunc("GET /api/reports/summary", reportHandler.HandleSummary)
	s.mux.HandleFunc("GET /api/reports/report_ids", reportHandler.HandleReportIDs)
	s.mux.HandleFunc("GET /api/reports/latest_report_id", reportHandler.HandleLatestReportID)
	s.mux.HandleFunc("POST /api/reports/saved-reports", reportHandler.HandleSaveReport)
	s.mux.HandleFunc("GET /api/reports/saved-reports", reportHandler.HandleListSavedReports)
	s.mux.HandleFunc("DELETE /api/reports/saved-reports/{id}", reportHandler.HandleDeleteSavedReport)

	return nil
}

// Handler returns the router wrapped in the middleware chain
// (outermost first): request log → CORS → rate limit → auth → router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = s.authMiddleware.Wrap(handler)
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)
	handler = RequestLogMiddleware(s.log, handler)
	return handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Adtech Reporting API"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": s.storage.Name(),
	})
}

// Start запускает HTTP сервер. Возвращает nil после Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("server listening on http://localhost%s", addr)
	s.log.Infof("health check: http://localhost%s/healthz", addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains the import queue and closes storage.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.imports.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("import queue: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := s.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	return errors.Join(errs...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
