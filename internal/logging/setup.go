// Package logging configures the zerolog output for the service.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/virtwarden/virtwarden/internal/config"
)

// Setup builds the root logger. Without file logging it writes to the
// console only; with it, output goes to console and a rotated file.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
		log.Warn().Str("invalid_level", cfg.Level).Msg("Invalid log level, using info")
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}

	if !cfg.Enabled {
		logger := zerolog.New(consoleWriter).With().Timestamp().Logger()
		log.Logger = logger
		return logger, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return zerolog.Logger{}, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFile := filepath.Join(cfg.Dir, cfg.File)
	fileWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if err := os.Chmod(logFile, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", logFile).Msg("Failed to set secure permissions on log file")
	}

	logger := zerolog.New(io.MultiWriter(consoleWriter, fileWriter)).With().Timestamp().Logger()
	log.Logger = logger

	logger.Info().
		Str("log_file", logFile).
		Str("level", level.String()).
		Msg("File logging initialized")
	return logger, nil
}
