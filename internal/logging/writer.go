package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Writer is an io.Writer that forwards line-oriented output from external
// components (such as the warehouse driver's internal logger) to slog.
type Writer struct {
	logger *slog.Logger
	level  slog.Level
	msg    string
}

// NewWriter constructs a Writer that logs each line at the given level.
func NewWriter(logger *slog.Logger, level Level, msg string) *Writer {
	if msg == "" {
		msg = "output"
	}
	return &Writer{logger: logger, level: slog.Level(level), msg: msg}
}

// Write logs the given bytes line by line, skipping empty lines.
func (w *Writer) Write(p []byte) (int, error) {
	if w.logger == nil {
		return len(p), nil
	}
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		w.logger.Log(context.Background(), w.level, w.msg, "line", line)
	}
	return len(p), nil
}
