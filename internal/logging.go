package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is one step finer than slog.LevelDebug, used for the
// per-segment/per-query tracing the ARP resolver and engine emit.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogAttrs is the helper every package logger embed delegates to. It
// no-ops on a nil *slog.Logger so components work without a logger
// configured.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
