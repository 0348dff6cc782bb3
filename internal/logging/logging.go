// Package logging configures zerolog for the binaries and adapts it for
// libraries that expect their own logger interface.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger from cfg, installs it as the global
// zerolog logger and returns it. DEV environments get console output on
// stderr, everything else gets JSON.
func Setup(cfg config.EnvConfig) zerolog.Logger {
	var out io.Writer = os.Stderr
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return install(New(out, cfg.GetLogLevel()).With().Str("app", cfg.GetAppName()).Logger())
}

// New returns a timestamped logger writing to out at the named level. An
// unknown level falls back to info.
func New(out io.Writer, level string) zerolog.Logger {
	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func install(l zerolog.Logger) zerolog.Logger {
	zerolog.SetGlobalLevel(l.GetLevel())
	log.Logger = l
	return l
}
