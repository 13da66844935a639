package device

import "codeberg.org/mutker/boostctl/internal/errors"

const (
	ErrInvalidInterval = errors.ErrorCode("device_invalid_interval")
	ErrPollerRunning   = errors.ErrorCode("device_poller_running")
	ErrParseFailure    = errors.ErrorCode("device_parse_failure")
)
