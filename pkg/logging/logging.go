// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Components derive their own via Component.
var Logger zerolog.Logger

func init() {
	level := zerolog.InfoLevel
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SetLevel adjusts the global log level, e.g. from command-line flags.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// Console switches the root logger to human-readable console output.
func Console() {
	Logger = Logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
