package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

const componentField = "component"

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger writing to stdout
func Init(level string, isService bool) {
	InitWithWriter(os.Stdout, level, isService)
}

// InitWithWriter initializes the logger writing to out. Services get no
// timestamps since the supervisor's journal adds its own.
func InitWithWriter(out io.Writer, level string, isService bool) {
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(any) string { return "" }
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	SetLogLevel(ParseLevel(level))
}

// ParseLevel maps a configured level name to a LogLevel, defaulting to info
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(level) {
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

// IsService reports whether the process looks supervised (systemd, init)
// rather than attached to a terminal session.
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}

	return os.Getppid() == 1 || syscall.Getpgrp() == syscall.Getpid()
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

func Debug() *LogEvent { return &LogEvent{log.Debug()} }
func Info() *LogEvent  { return &LogEvent{log.Info()} }
func Warn() *LogEvent  { return &LogEvent{log.Warn()} }
func Error() *LogEvent { return &LogEvent{log.Error()} }

// Fatal logs at fatal level and exits once the event is sent
func Fatal() *LogEvent { return &LogEvent{log.Fatal()} }

// ErrorWithCode logs a coded error with its code, message and cause
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// FatalWithCode is ErrorWithCode at fatal level
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

type defaultLogger struct {
	component string
}

// Default returns a Logger backed by the package-level logger
func Default() Logger {
	return defaultLogger{}
}

func (l defaultLogger) tag(e *zerolog.Event) *zerolog.Event {
	if l.component == "" {
		return e
	}
	return e.Str(componentField, l.component)
}

func (l defaultLogger) Debug() *LogEvent { return &LogEvent{l.tag(log.Debug())} }
func (l defaultLogger) Info() *LogEvent  { return &LogEvent{l.tag(log.Info())} }
func (l defaultLogger) Warn() *LogEvent  { return &LogEvent{l.tag(log.Warn())} }
func (l defaultLogger) Error() *LogEvent { return &LogEvent{l.tag(log.Error())} }

func (l defaultLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(l.tag(log.Error()), err)
}

func (l defaultLogger) Named(component string) Logger {
	return defaultLogger{component: component}
}
