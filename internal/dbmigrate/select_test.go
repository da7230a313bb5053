package dbmigrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/fdg312/adreport/internal/config"
)

func TestSelectDatabaseURL_Priority(t *testing.T) {
	cfg := &config.Config{
		DatabaseURLDirect: "postgres://direct",
		DatabaseURLRaw:    "postgres://url",
		DatabaseURLPooled: "postgres://pooled",
	}

	dbURL, source, warning, err := SelectDatabaseURL(cfg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dbURL != "postgres://direct" || source != "DATABASE_URL_DIRECT" {
		t.Fatalf("expected direct URL, got dbURL=%q source=%q", dbURL, source)
	}
	if warning != "" {
		t.Fatalf("unexpected warning: %q", warning)
	}
}

func TestSelectDatabaseURL_FallbackToDatabaseURL(t *testing.T) {
	cfg := &config.Config{
		DatabaseURLRaw:    "postgres://url",
		DatabaseURLPooled: "postgres://pooled",
	}

	dbURL, source, warning, err := SelectDatabaseURL(cfg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dbURL != "postgres://url" || source != "DATABASE_URL" {
		t.Fatalf("expected DATABASE_URL, got dbURL=%q source=%q", dbURL, source)
	}
	if warning != "" {
		t.Fatalf("unexpected warning: %q", warning)
	}
}

func TestSelectDatabaseURL_PooledWarning(t *testing.T) {
	cfg := &config.Config{
		DatabaseURLPooled: "postgres://pooled",
	}

	dbURL, source, warning, err := SelectDatabaseURL(cfg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dbURL != "postgres://pooled" || source != "DATABASE_URL_POOLED" {
		t.Fatalf("expected pooled URL, got dbURL=%q source=%q", dbURL, source)
	}
	if warning == "" {
		t.Fatal("expected warning for pooled DDL usage")
	}
}

func TestSelectDatabaseURL_RequireDirect(t *testing.T) {
	cfg := &config.Config{
		DatabaseURLRaw:    "postgres://url",
		DatabaseURLPooled: "postgres://pooled",
	}

	_, _, _, err := SelectDatabaseURL(cfg, true)
	if err == nil {
		t.Fatal("expected error when direct is required but missing")
	}
}

func TestUsesPostgres(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		want bool
	}{
		{"forced postgres", config.Config{StorageMode: config.StorageModePostgres}, true},
		{"memory", config.Config{StorageMode: config.StorageModeMemory, DatabaseURL: "postgres://x"}, false},
		{"mongo", config.Config{StorageMode: config.StorageModeMongo, DatabaseURL: "postgres://x"}, false},
		{"auto with database url", config.Config{StorageMode: config.StorageModeAuto, DatabaseURL: "postgres://x"}, true},
		{"auto prefers mongo", config.Config{StorageMode: config.StorageModeAuto, MongoURI: "mongodb://x", DatabaseURL: "postgres://x"}, false},
		{"auto without urls", config.Config{StorageMode: config.StorageModeAuto}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UsesPostgres(&tc.cfg); got != tc.want {
				t.Fatalf("expected %t, got %t", tc.want, got)
			}
		})
	}
}

func TestSourceFallsBackToEmbedded(t *testing.T) {
	fsys, dir := Source(t.TempDir() + "/missing")
	if fsys == nil || dir != "." {
		t.Fatalf("expected embedded migrations, got fsys=%v dir=%q", fsys, dir)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	sqlFiles := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			sqlFiles++
		}
	}
	if sqlFiles < 3 {
		t.Fatalf("expected at least 3 embedded migrations, got %d", sqlFiles)
	}

	disk := t.TempDir()
	fsys, dir = Source(disk)
	if fsys != nil || dir != disk {
		t.Fatalf("expected on-disk dir %q, got fsys=%v dir=%q", disk, fsys, dir)
	}
}
