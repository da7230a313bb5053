package blob

import (
	"fmt"
	"strings"

	appcfg "github.com/fdg312/adreport/internal/config"
	"github.com/sirupsen/logrus"
)

// NewBlobStore builds the import archive store using mode local|s3|auto.
// Local mode returns a nil store: sources are not archived.
func NewBlobStore(cfg appcfg.BlobConfig, log logrus.FieldLogger) (Store, string, error) {
	log = log.WithField("component", "blob")

	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = appcfg.BlobModeLocal
	}

	switch mode {
	case appcfg.BlobModeLocal:
		log.Info("mode=local (forced)")
		return nil, appcfg.BlobModeLocal, nil

	case appcfg.BlobModeAuto:
		if !cfg.S3.IsConfigured() {
			level, code, msg := cfg.S3.Diagnostics()
			entry := log.WithField("code", code)
			if level == "WARN" {
				entry.Warnf("s3 %s", msg)
			} else {
				entry.Infof("s3 %s", msg)
			}
			log.Infof("s3 %s", cfg.S3.DiagnosticsSummary())
			log.Info("mode=local (auto, S3 not configured)")
			return nil, appcfg.BlobModeLocal, nil
		}

		log.WithField("code", "s3_ready").Info(cfg.S3.DiagnosticsSummary())
		store, err := NewS3Store(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
		if err != nil {
			log.WithError(err).Warn("s3 init failed, fallback=local")
			return nil, appcfg.BlobModeLocal, nil
		}

		log.Info("mode=s3 (auto, configured)")
		return store, appcfg.BlobModeS3, nil

	case appcfg.BlobModeS3:
		if !cfg.S3.IsConfigured() {
			missing := cfg.S3.MissingRequired()
			log.WithField("code", "s3_config_incomplete").Errorf("missing=%v %s", missing, cfg.S3.DiagnosticsSummary())
			return nil, "", fmt.Errorf("BLOB_MODE=s3 requested but missing required config: %s", strings.Join(missing, ", "))
		}

		log.WithField("code", "s3_ready").Info(cfg.S3.DiagnosticsSummary())
		store, err := NewS3Store(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
		if err != nil {
			log.WithError(err).Error("s3 init failed")
			return nil, "", fmt.Errorf("BLOB_MODE=s3 init failed: %w", err)
		}

		log.Info("mode=s3 (forced)")
		return store, appcfg.BlobModeS3, nil

	default:
		return nil, "", fmt.Errorf("unsupported blob mode: %s", mode)
	}
}
