package app

import (
	"strings"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/logger"
)

// ConfigureLogging initialises the global logger, defaulting to info level and JSON output.
func ConfigureLogging(cfg LoggingConfig) error {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}

	format := strings.TrimSpace(cfg.Format)
	if format == "" {
		format = "json"
	}

	return logger.Init(level, format)
}
