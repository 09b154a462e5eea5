package httpapi

import (
	"log/slog"
	"strings"
)

// slogWriter adapts an io.Writer interface onto slog so
// handlers.CombinedLoggingHandler's Apache-style access lines go through
// the same structured logger as the rest of the process, matching the
// teacher's practice of never writing straight to stdout/stderr once
// logging is set up.
type slogWriter struct {
	log *slog.Logger
}

func newSlogWriter(log *slog.Logger) *slogWriter {
	return &slogWriter{log: log}
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.log.Info("http access", "line", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
