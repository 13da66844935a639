package shell

import "codeberg.org/mutker/boostctl/internal/errors"

const (
	ErrLaunchFailed     = errors.ErrorCode("shell_launch_failed")
	ErrElevationDenied  = errors.ErrorCode("shell_elevation_denied")
	ErrInterruptedWait  = errors.ErrorCode("shell_interrupted_wait")
	ErrEmptyCommandLine = errors.ErrorCode("shell_empty_command_line")
)
