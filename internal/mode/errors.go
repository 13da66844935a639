package mode

import "codeberg.org/mutker/boostctl/internal/errors"

const (
	ErrUnknownMode = errors.ErrorCode("mode_unknown")
	ErrStepFailed  = errors.ErrorCode("mode_step_failed")
)
