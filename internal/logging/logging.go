package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger: human-readable console output in dev,
// JSON everywhere else.
func New(env, service string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	if env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", service).Logger()
	}
	return logger
}
