package fetch

import (
	"log/slog"
	"sync"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

// SetLogger sets a custom slog.Logger instance to be used by the fetch
// package. If not set, the default slog logger will be used. Failed cache
// writes, observer errors and other non-fatal faults are reported through
// this logger instead of surfacing to the caller (see §7).
func SetLogger(l *slog.Logger) {
	logger = l
}

// GetLogger returns the configured logger or the default slog logger.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = slog.Default()
		}
	})
	return logger
}
