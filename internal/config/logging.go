package config

import (
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logger from the log settings: a size-rotated file
// when one is configured, stderr otherwise.
func NewLogger(cfg LogConfig, prefix string) *log.Logger {
	if cfg.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}, prefix, log.LstdFlags)
}
