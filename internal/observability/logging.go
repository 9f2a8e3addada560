package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog Logger writing to stderr, so command output on
// stdout stays machine readable. The development environment ("dev" or
// "development") uses a human-friendly console writer.
func NewLogger(env string, level zerolog.Level) zerolog.Logger {
	return newLogger(os.Stderr, env, level)
}

func newLogger(w io.Writer, env string, level zerolog.Level) zerolog.Logger {
	if env == "dev" || env == "development" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stderr}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
