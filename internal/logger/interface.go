package logger

import "codeberg.org/mutker/boostctl/internal/errors"

// Logger is the logging surface handed to components.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
	// Named returns a Logger tagging every event with component.
	Named(component string) Logger
}
