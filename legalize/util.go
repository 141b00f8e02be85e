package legalize

import (
	"context"
	"log/slog"
)

// LevelTrace is the level fix traces are logged at.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs one applied rewrite.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}
