package errors

// ErrorCode identifies a class of failure. Codes are stable strings so they
// can be logged and matched across package boundaries.
type ErrorCode string

// Error is an error carrying an ErrorCode. Two Errors match under Is when
// their codes are equal, regardless of message or data.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
	Is(target error) bool
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
