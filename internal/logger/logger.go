package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

func init() {
	zerolog.TimestampFieldName = "timestamp"
}

// New builds the application logger for env. Output goes to w, or stdout
// when w is nil.
func New(env string, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}

	level := zerolog.InfoLevel
	switch env {
	case EnvProd:
	case EnvDev:
		level = zerolog.DebugLevel
	case EnvLocal, "":
		level = zerolog.TraceLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown env: %s", env)
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Caller().
		Int("pid", os.Getpid()).
		Str("env", env).
		Logger(), nil
}

// Bootstrap is used before the configuration has been read.
func Bootstrap() zerolog.Logger {
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger()
}
