package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var Log = zerolog.Nop()

// DefaultPath is the log file inside the user config dir, falling back to
// /tmp when the config dir cannot be used.
func DefaultPath() string {
	logPath := "/tmp/sdrtune.log"
	configDir, err := os.UserConfigDir()
	if err == nil {
		dir := filepath.Join(configDir, "sdrtune")
		if err := os.MkdirAll(dir, 0755); err == nil {
			logPath = filepath.Join(dir, "sdrtune.log")
		}
	}
	return logPath
}

// Init points Log at an append-only file. The terminal belongs to the UI, so
// nothing is ever written to stdout.
func Init(level, path string) (io.Closer, error) {
	if path == "" {
		path = DefaultPath()
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	Log = zerolog.New(file).Level(lvl).With().Timestamp().Caller().Logger()
	Log.Info().Str("path", path).Msg("Logger initialized")
	return file, nil
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}
