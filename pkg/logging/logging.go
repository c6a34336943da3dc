package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Settings configures the rotated file logger the chat UI switches to once it owns
// the terminal. Other commands log through the glazed logging flags.
type Settings struct {
	Level string
	// File switches output from stderr to a rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	JSON       bool
}

// Init configures the global zerolog logger. The returned closer releases the log file, if any.
func Init(s Settings) (io.Closer, error) {
	level := zerolog.InfoLevel
	if strings.TrimSpace(s.Level) != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s.Level)))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if f := strings.TrimSpace(s.File); f != "" {
		lj := &lumberjack.Logger{
			Filename:   f,
			MaxSize:    s.MaxSizeMB,
			MaxBackups: s.MaxBackups,
		}
		out = lj
		closer = lj
	}
	if !s.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: s.File != ""}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// watermillAdapter routes watermill's internal logging into zerolog.
type watermillAdapter struct {
	logger zerolog.Logger
}

func NewWatermill(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{logger: logger.With().Str("component", "watermill").Logger()}
}

func (w *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	// watermill is chatty at info; keep it at debug here
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{logger: w.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
