package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger = zerolog.New(io.Discard)
	mu  sync.RWMutex
)

type LogMode string

const (
	LogModeDebug  LogMode = "debug"
	LogModePretty LogMode = "pretty"
	LogModeInfo   LogMode = "info"
	LogModeProd   LogMode = "prod"
	LogModeTest   LogMode = "test"
)

func ParseMode(s string) (LogMode, error) {
	switch mode := LogMode(strings.ToLower(s)); mode {
	case LogModeDebug, LogModePretty, LogModeInfo, LogModeProd, LogModeTest:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid log mode %q (debug, pretty, info, prod, test)", s)
	}
}

type Config struct {
	Level         zerolog.Level
	Pretty        bool
	TimeFormat    string
	CallerEnabled bool
	NoColor       bool
	Output        io.Writer
}

func ConfigForMode(mode LogMode) Config {
	cfg := Config{
		Level:         zerolog.InfoLevel,
		TimeFormat:    time.RFC3339,
		CallerEnabled: true,
	}
	switch mode {
	case LogModeDebug:
		cfg.Level = zerolog.DebugLevel
		cfg.Pretty = true
	case LogModePretty:
		cfg.Pretty = true
	case LogModeProd:
		cfg.TimeFormat = time.RFC3339Nano
		cfg.CallerEnabled = false
		cfg.NoColor = true
	case LogModeTest:
		cfg.Level = zerolog.ErrorLevel
		cfg.CallerEnabled = false
		cfg.NoColor = true
		cfg.Output = io.Discard
	}
	return cfg
}

func InitWithMode(mode LogMode) {
	Init(ConfigForMode(mode))
}

func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:          output,
			TimeFormat:   cfg.TimeFormat,
			NoColor:      cfg.NoColor,
			PartsExclude: []string{"user_agent", "remote_addr"},
			FormatFieldName: func(i interface{}) string {
				return fmt.Sprintf("%s=", i)
			},
		}
	}

	zerolog.SetGlobalLevel(cfg.Level)
	zerolog.TimeFieldFormat = cfg.TimeFormat

	logCtx := zerolog.New(output).With().Timestamp()
	if cfg.CallerEnabled {
		logCtx = logCtx.Caller()
	}
	log = logCtx.Logger()
	zerolog.DefaultContextLogger = &log
}

func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func WithComponent(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.With().Str("component", component).Logger()
}

// WithWorker scopes a component logger to one worker.
func WithWorker(component string, workerID uint64) zerolog.Logger {
	l := WithComponent(component)
	return l.With().Uint64("worker_id", workerID).Logger()
}

func WithRequestID(requestID string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.With().Str("request_id", requestID).Logger()
}
