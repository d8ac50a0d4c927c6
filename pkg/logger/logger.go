package logger

import (
	"io"
	"log/slog"
)

// Init initializes the global slog logger with a JSON handler. The
// timestamp/level/message keys are renamed for the log pipeline.
func Init(writer io.Writer, level slog.Level) {
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if a.Key == slog.LevelKey {
				a.Key = "level"
			}
			if a.Key == slog.MessageKey {
				a.Key = "message"
			}
			return a
		},
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// ForRun returns the default logger scoped with the run's correlation
// field, so every line a run emits can be grepped by run id.
func ForRun(runID string) *slog.Logger {
	return slog.Default().With("run_id", runID)
}
