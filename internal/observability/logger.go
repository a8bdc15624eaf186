// Package observability configures structured logging for the service.
package observability

import (
	"log/slog"
	"os"
	"time"

	"github.com/hrygo/todayfeed/internal/profile"
)

// Shared field names so log lines stay greppable across packages.
const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldOperation is the field name for the cache operation.
	LogFieldOperation = "operation"
)

// SetupLogger installs the process-wide slog default: JSON in prod, text
// elsewhere, debug level in dev.
func SetupLogger(p *profile.Profile) *slog.Logger {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if p.Mode == "prod" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// DurationMs converts an elapsed duration to the value logged under
// LogFieldDuration.
func DurationMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
