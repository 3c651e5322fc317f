package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = zerolog.New(io.Discard)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// FileConfig enables an additional JSON log file with size-based rotation.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init initializes the logger for the given level name. Unknown names fall
// back to info.
func Init(level string, isService bool) {
	InitWithFile(level, isService, FileConfig{})
}

// InitWithFile is Init plus an optional rotating log file. The returned
// Closer releases the file.
func InitWithFile(level string, isService bool, file FileConfig) io.Closer {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.NoColor = true
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	var (
		w      io.Writer = output
		closer io.Closer = nopCloser{}
	)
	if file.Path != "" {
		rotating := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(output, rotating)
		closer = rotating
	}

	log = zerolog.New(w).With().Timestamp().Logger()

	SetLogLevel(ParseLevel(level))

	return closer
}

// InitWriter routes output to w without console formatting. Used by tests
// that assert on log content.
func InitWriter(w io.Writer, level LogLevel) {
	log = zerolog.New(w).With().Timestamp().Logger()
	SetLogLevel(level)
}

// ParseLevel maps a configured level name to a LogLevel
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message carrying the code of err
func ErrorWithCode(err error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(errors.CodeOf(err))).
		Err(err)}
}

// WarnWithCode is ErrorWithCode at warning level
func WarnWithCode(err error) *LogEvent {
	return &LogEvent{log.Warn().
		Str("error_code", string(errors.CodeOf(err))).
		Err(err)}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with the code of err and exits the program
func FatalWithCode(err error) *LogEvent {
	return &LogEvent{log.Fatal().
		Str("error_code", string(errors.CodeOf(err))).
		Err(err)}
}
