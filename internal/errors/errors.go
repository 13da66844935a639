package errors

import (
	"errors"
	"fmt"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

type codedError struct {
	code    ErrorCode
	message string
	cause   error
	data    any
}

// Error renders the message, falling back to the registered message for the
// code, followed by the data or else the cause.
func (e *codedError) Error() string {
	message := e.message
	if message == "" {
		message = GetErrorMessage(e.code)
	}

	switch {
	case e.data != nil:
		return fmt.Sprintf("%s: %v", message, e.data)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", message, e.cause)
	default:
		return message
	}
}

func (e *codedError) Code() ErrorCode { return e.code }
func (e *codedError) GetData() any    { return e.data }
func (e *codedError) Unwrap() error   { return e.cause }

func (e *codedError) Is(target error) bool {
	other, ok := target.(Error)
	return ok && other.Code() == e.code
}

func (e *codedError) WithMessage(msg string) Error {
	c := *e
	c.message = msg
	return &c
}

func (e *codedError) WithData(data any) Error {
	c := *e
	c.data = data
	return &c
}

type factory struct{}

func (factory) New(code ErrorCode) Error {
	return &codedError{code: code}
}

func (factory) Wrap(code ErrorCode, err error) Error {
	return &codedError{code: code, cause: err}
}

func (factory) WithMessage(code ErrorCode, msg string) Error {
	return &codedError{code: code, message: msg}
}

func (factory) WithData(code ErrorCode, data any) Error {
	return &codedError{code: code, data: data}
}

// New returns a Factory.
func New() Factory {
	return factory{}
}

// CodeOf returns the code of the first coded error in err's chain, or an
// empty code when there is none.
func CodeOf(err error) ErrorCode {
	var coded Error
	if As(err, &coded) {
		return coded.Code()
	}

	return ""
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && Is(err, factory{}.New(code))
}
