package utils

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog logger based on level and format configuration.
func NewLogger(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}

	var logger zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	default:
		return zerolog.Logger{}, errors.New("unsupported log format")
	}

	return logger.Level(lvl).With().Str("service", "student-support").Logger(), nil
}
