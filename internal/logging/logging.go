package logging

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Named returns a logger tagged with a component name. Output is
// human-readable on the console unless SHAPERCTL_LOG_JSON is set.
func Named(name string) zerolog.Logger {
	l := base.With().Str("component", name).Logger()
	if jsonOut, _ := strconv.ParseBool(os.Getenv("SHAPERCTL_LOG_JSON")); !jsonOut {
		l = l.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return l
}

// SetLevel applies a global level by name. Unknown names leave the
// level unchanged.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}
