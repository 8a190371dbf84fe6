package clipboard

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// logger is the package-wide diagnostic sink. It defaults to a text handler
// on stderr at Info level, mirroring the way cogentcore.org/core wires a
// default slog.Logger for its packages. Logging never changes a call's
// return value; it is a pure side channel, per SPEC_FULL §4.8.
var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// SetLogger replaces the package's diagnostic logger. Passing nil silences
// the package: it installs a stderr handler whose minimum level is above
// slog.LevelError, so no record at any standard level is written.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	logger.Store(l)
}

func log() *slog.Logger {
	return logger.Load()
}
