// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the configuration for the logger.
type Config struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	JSONFormat bool   `mapstructure:"json_format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Setup configures the global logger: a console writer on stderr plus an
// optional rotated log file. The returned closer releases the file.
func Setup(cfg Config) io.Closer {
	return setup(cfg, os.Stderr)
}

func setup(cfg Config, console io.Writer) io.Closer {
	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		closer = rotator
		if cfg.JSONFormat {
			writers = append(writers, rotator)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: rotator, TimeFormat: time.RFC3339, NoColor: true})
		}
	}

	multiWriter := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multiWriter).With().Timestamp().Logger()

	SetLevel(cfg.Level)

	log.Debug().Str("file", cfg.File).Msg("Logger initialized")
	return closer
}

// SetLevel sets the global logging level.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		if level != "" {
			log.Warn().Msgf("Unknown log level '%s', defaulting to 'info'", level)
		}
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
