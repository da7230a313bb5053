package config

import (
	"strings"
	"testing"
)

func readyS3() S3Config {
	return S3Config{
		Endpoint:          "http://localhost:9000",
		Region:            "us-east-1",
		Bucket:            "adreport-imports",
		AccessKeyID:       "key",
		SecretAccessKey:   "secret",
		PresignTTLSeconds: 900,
	}
}

func TestS3ConfigDiagnostics(t *testing.T) {
	partial := readyS3()
	partial.Region = ""

	cases := []struct {
		name       string
		cfg        S3Config
		level      string
		code       string
		configured bool
	}{
		{"empty", S3Config{}, "INFO", "s3_not_configured", false},
		{"endpoint only", S3Config{Endpoint: "http://localhost:9000"}, "WARN", "s3_partial_config", false},
		{"region missing", partial, "WARN", "s3_partial_config", false},
		{"ready", readyS3(), "INFO", "s3_ready", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, code, _ := tc.cfg.Diagnostics()
			if level != tc.level || code != tc.code {
				t.Fatalf("expected %s/%s, got %s/%s", tc.level, tc.code, level, code)
			}
			if tc.cfg.IsConfigured() != tc.configured {
				t.Fatalf("expected IsConfigured=%t", tc.configured)
			}
		})
	}
}

func TestS3ConfigMissingRequired(t *testing.T) {
	cfg := readyS3()
	cfg.Region = ""
	cfg.SecretAccessKey = " "

	missing := cfg.MissingRequired()
	if len(missing) != 2 || missing[0] != "S3_REGION" || missing[1] != "S3_SECRET_ACCESS_KEY" {
		t.Fatalf("unexpected missing list: %v", missing)
	}
}

func TestS3DiagnosticsSummaryHidesSecrets(t *testing.T) {
	summary := readyS3().DiagnosticsSummary()

	if strings.Contains(summary, "secret_access_key=secret") || strings.Contains(summary, "access_key_id=key") {
		t.Fatalf("summary leaks credentials: %s", summary)
	}
	if !strings.Contains(summary, "bucket=adreport-imports") || !strings.Contains(summary, "presign_ttl=900s") {
		t.Fatalf("unexpected summary: %s", summary)
	}
}

func TestImportMaxBytes(t *testing.T) {
	cfg := &Config{ImportMaxMB: 50}
	if got := cfg.ImportMaxBytes(); got != 50<<20 {
		t.Fatalf("expected %d, got %d", 50<<20, got)
	}
}
