package vfs

import (
	"fmt"
	"log/slog"
)

// logger is the package-wide structured logger. Backends log through
// it rather than calling slog directly so a caller can swap it with
// SetLogger.
var logger = slog.Default()

// SetLogger replaces the package-wide logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Warnf logs a warning, matching the teacher's fs.Logf call sites:
// non-fatal recoverable conditions (front-side write failures in
// wrap/cloning and wrap/cached) are logged, not raised.
func Warnf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...))
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...))
}
