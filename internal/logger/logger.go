// Package logger wraps zerolog the way the rest of the WarDragon stack
// expects: a small interface over zerolog.Logger, an env-driven Config,
// and a WithComponent helper so every long-lived task tags its lines.
package logger

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the minimal surface every component in this repo depends on.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) Logger
	SetLevel(level zerolog.Level)
}

// Config drives logger construction from the environment.
type Config struct {
	Level      string
	Debug      bool
	Output     string
	TimeFormat string
}

// DefaultConfig reads LOG_LEVEL, DEBUG, LOG_OUTPUT, LOG_TIME_FORMAT.
func DefaultConfig() *Config {
	return &Config{
		Level:      getEnvOrDefault("LOG_LEVEL", "info"),
		Debug:      getEnvBoolOrDefault("DEBUG", false),
		Output:     getEnvOrDefault("LOG_OUTPUT", "stdout"),
		TimeFormat: getEnvOrDefault("LOG_TIME_FORMAT", time.RFC3339),
	}
}

type impl struct {
	zl zerolog.Logger
}

// New builds a Logger from Config. A nil Config uses DefaultConfig.
func New(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var output io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()

	return &impl{zl: zl}, nil
}

func (l *impl) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *impl) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *impl) Info() *zerolog.Event  { return l.zl.Info() }
func (l *impl) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *impl) Error() *zerolog.Event { return l.zl.Error() }
func (l *impl) Fatal() *zerolog.Event { return l.zl.Fatal() }
func (l *impl) With() zerolog.Context { return l.zl.With() }

func (l *impl) WithComponent(component string) Logger {
	return &impl{zl: l.zl.With().Str("component", component).Logger()}
}

func (l *impl) SetLevel(level zerolog.Level) {
	l.zl = l.zl.Level(level)
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if v, err := strconv.ParseBool(raw); err == nil {
		return v
	}
	return def
}
