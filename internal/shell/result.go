package shell

import (
	"codeberg.org/mutker/boostctl/internal/errors"
)

// ErrorKind classifies why a command did not produce a result.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindLaunchFailed
	KindElevationDenied
	KindInterruptedWait
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindLaunchFailed:
		return "launch_failed"
	case KindElevationDenied:
		return "elevation_denied"
	case KindInterruptedWait:
		return "interrupted_wait"
	default:
		return "unknown"
	}
}

// Code returns the error code matching the kind.
func (k ErrorKind) Code() errors.ErrorCode {
	switch k {
	case KindLaunchFailed:
		return ErrLaunchFailed
	case KindElevationDenied:
		return ErrElevationDenied
	case KindInterruptedWait:
		return ErrInterruptedWait
	default:
		return ""
	}
}

// CommandResult is the outcome of one Execute call.
type CommandResult struct {
	Succeeded bool
	Output    string
	Kind      ErrorKind
	Err       errors.Error
}

// Success builds a successful result.
func Success(output string) CommandResult {
	return CommandResult{Succeeded: true, Output: output}
}

// Failure builds a failed result of the given kind wrapping cause.
func Failure(kind ErrorKind, cause error) CommandResult {
	errFactory := errors.New()

	var err errors.Error
	if cause == nil {
		err = errFactory.New(kind.Code())
	} else {
		err = errFactory.Wrap(kind.Code(), cause)
	}

	return CommandResult{Kind: kind, Err: err}
}
