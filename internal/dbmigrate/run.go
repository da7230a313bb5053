package dbmigrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"github.com/fdg312/adreport/migrations"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Run executes a goose command (up, down, status, ...). Migrations are read
// from migrationsDir when it exists on disk, otherwise from the embedded set.
func Run(command string, dbURL string, migrationsDir string) error {
	if dbURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	fsys, dir := Source(migrationsDir)
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Run(command, db, dir); err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}

	return nil
}

// Source picks where migrations are loaded from.
func Source(migrationsDir string) (fs.FS, string) {
	if migrationsDir == "" {
		migrationsDir = DefaultMigrationsDir
	}
	if info, err := os.Stat(migrationsDir); err == nil && info.IsDir() {
		return nil, migrationsDir
	}
	return migrations.FS, "."
}
