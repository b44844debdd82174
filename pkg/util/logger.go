package util

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. Development gets readable
// text at debug level; everything else emits JSON for log shipping.
func NewLogger(env string) *slog.Logger {
	if env == "development" {
		handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		return slog.New(handler)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler).With("service", "bookpool")
}
