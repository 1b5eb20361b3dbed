// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger and returns it.
// JSON output is meant for production; the console writer for terminals.
func Init(serviceName string, debug, jsonOutput bool) zerolog.Logger {
	return InitTo(os.Stdout, serviceName, debug, jsonOutput)
}

// InitTo is Init with an explicit writer.
func InitTo(out io.Writer, serviceName string, debug, jsonOutput bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "message"

	if !jsonOutput {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				return fmt.Sprintf("| %-6s|", i)
			},
			FormatMessage: func(i interface{}) string {
				return fmt.Sprintf("| %s", i)
			},
			FormatFieldName: func(i interface{}) string {
				return fmt.Sprintf("%s:", i)
			},
		}
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	log.Debug().Msg("logger initialized")
	return log.Logger
}

// Component returns a child of the global logger tagged with component.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
