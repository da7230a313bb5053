package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/adreport/internal/config"
	"github.com/fdg312/adreport/internal/dbmigrate"
)

var allowedCommands = map[string]bool{
	"up":      true,
	"down":    true,
	"status":  true,
	"version": true,
	"redo":    true,
}

func main() {
	dir := flag.String("dir", dbmigrate.DefaultMigrationsDir, "migrations directory (embedded set is used when missing)")
	direct := flag.Bool("direct", false, "require DATABASE_URL_DIRECT")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: go run ./cmd/migrate [-dir path] [-direct] up|down|status|version|redo\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)
	if !allowedCommands[command] {
		log.Fatalf("unsupported command %q", command)
	}

	cfg := config.Load()
	if !dbmigrate.UsesPostgres(cfg) {
		// Mongo and memory backends create their indexes at startup.
		log.Printf("WARN migrate: STORAGE_MODE=%s does not use Postgres; migrating anyway", cfg.StorageMode)
	}

	dbURL, source, warning, err := dbmigrate.SelectDatabaseURL(cfg, *direct)
	if err != nil {
		log.Fatal(err)
	}
	if warning != "" {
		log.Printf("WARN migrate: %s", warning)
	}
	log.Printf("migrate: command=%s using=%s", command, source)

	if err := dbmigrate.Run(command, dbURL, *dir); err != nil {
		log.Fatal(err)
	}

	log.Printf("migrate: %s completed successfully", command)
}
