package worker

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// NewProcessLogger builds the slog logger for a worker process: text output
// to stdout, plus a per-worker log file when logDir is set. The returned
// closer is nil when no file was opened.
func NewProcessLogger(logDir, workerID string) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		path := filepath.Join(logDir, fmt.Sprintf("worker_%s.log", workerID))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open worker log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler), closer, nil
}
