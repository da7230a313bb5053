package logger

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v6"
)

// Config holds logging options read from LOG_* variables.
type Config struct {
	// trace, debug, info, warn, error
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// json, text
	Format string `env:"LOG_FORMAT" envDefault:"text"`

	// stdout, file, both
	Output string `env:"LOG_OUTPUT" envDefault:"stdout"`

	Path string `env:"LOG_PATH" envDefault:"./logs"`
	File string `env:"LOG_FILE" envDefault:"adreport.log"`

	MaxSize    int  `env:"LOG_MAX_SIZE" envDefault:"100"` // MB
	MaxBackups int  `env:"LOG_MAX_BACKUPS" envDefault:"7"`
	MaxAge     int  `env:"LOG_MAX_AGE" envDefault:"7"` // days
	Compress   bool `env:"LOG_COMPRESS" envDefault:"true"`
}

// LoadConfig parses the LOG_* environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse log config: %w", err)
	}

	cfg.Level = strings.ToLower(strings.TrimSpace(cfg.Level))
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	cfg.Output = strings.ToLower(strings.TrimSpace(cfg.Output))
	return cfg, nil
}
