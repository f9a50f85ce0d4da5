package logx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mferon/blobpack/internal/config"
)

// ErrMissingFilepath means a logging section was supplied without the one
// field it cannot work without.
var ErrMissingFilepath = errors.New("logging config requires filepath")

// Init configures the global zerolog logger from the logging config
// section. A nil section keeps the defaults: JSON to stdout at info.
//
// When a section is present, filepath is mandatory and output is appended
// to that file; format selects json (default) or console rendering.
func Init(lc *config.Logging) error {
	// Always use UTC timestamps in RFC3339.
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	if lc == nil {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return nil
	}

	if strings.TrimSpace(lc.Filepath) == "" {
		return ErrMissingFilepath
	}
	path := expandHome(lc.Filepath)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(parseLevel(lc.Loglevel))

	var logger zerolog.Logger
	if strings.EqualFold(lc.Format, "console") {
		cw := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = out
			w.NoColor = true
			w.TimeFormat = time.RFC3339
		})
		logger = zerolog.New(cw).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Logger()
	}
	log.Logger = logger
	return nil
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
