// Package logger is the leveled logger shared by the bridge,
// the providers and the command line.
//
// A Logger is an instance built with options and injected
// where it is needed, while the package level functions log
// through the default instance.
package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	levelDiscard
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name case insensitively.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, errors.Errorf("unknown log level %q", level)
}

// Logger is a leveled logger safe for concurrent use.
type Logger struct {
	level  atomic.Int32
	out    *stdlog.Logger
	closer io.Closer
}

type option struct {
	writer io.Writer
	closer io.Closer
	level  Level
}

// Option customizes the logger under construction.
type Option func(*option)

// Writer sets the destination of the logs.
func Writer(w io.Writer) Option {
	return func(o *option) {
		o.writer = w
		o.closer = nil
	}
}

// WithLevel sets the minimum level to emit.
func WithLevel(level Level) Option {
	return func(o *option) {
		o.level = level
	}
}

// RotationConfig configures the rotating log file.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// File writes the logs into a rotating file.
func File(path string, rotation RotationConfig) Option {
	return func(o *option) {
		writer := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			LocalTime:  true,
		}
		o.writer = writer
		o.closer = writer
	}
}

// Output selects the destination by name: "stdout", "stderr"
// or else the path of a rotating log file.
func Output(name string, rotation RotationConfig) Option {
	switch strings.ToLower(name) {
	case "", "stdout":
		return Writer(os.Stdout)
	case "stderr":
		return Writer(os.Stderr)
	default:
		return File(name, rotation)
	}
}

// New creates a logger, writing to stdout at info level unless
// specified otherwise.
func New(opts ...Option) *Logger {
	o := &option{
		writer: os.Stdout,
		level:  LevelInfo,
	}
	for _, opt := range opts {
		opt(o)
	}
	result := &Logger{
		out:    stdlog.New(o.writer, "", 0),
		closer: o.closer,
	}
	result.level.Store(int32(o.level))
	return result
}

// Discarder returns a logger dropping everything.
func Discarder() *Logger {
	return New(Writer(io.Discard), WithLevel(levelDiscard))
}

// SetLevel changes the minimum level to emit.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Enabled tells whether the level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return level >= Level(l.level.Load())
}

func (l *Logger) log(level Level, format string, v ...any) {
	if !l.Enabled(level) {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.out.Printf("[%s] [%s] %s", timestamp, level, fmt.Sprintf(format, v...))
}

func (l *Logger) Debugf(format string, v ...any) { l.log(LevelDebug, format, v...) }

func (l *Logger) Infof(format string, v ...any) { l.log(LevelInfo, format, v...) }

func (l *Logger) Warnf(format string, v ...any) { l.log(LevelWarn, format, v...) }

func (l *Logger) Errorf(format string, v ...any) { l.log(LevelError, format, v...) }

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New())
}

// Default returns the process wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process wide logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

func Debugf(format string, v ...any) { Default().Debugf(format, v...) }

func Infof(format string, v ...any) { Default().Infof(format, v...) }

func Warnf(format string, v ...any) { Default().Warnf(format, v...) }

func Errorf(format string, v ...any) { Default().Errorf(format, v...) }
