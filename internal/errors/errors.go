package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	Is = errors.Is
	As = errors.As
)

type codedError struct {
	code    ErrorCode
	message string
	cause   error
	data    any
}

func (e *codedError) Error() string {
	var b strings.Builder
	if e.message != "" {
		b.WriteString(e.message)
	} else {
		b.WriteString(GetErrorMessage(e.code))
	}
	if e.data != nil {
		fmt.Fprintf(&b, ": %v", e.data)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}

	return b.String()
}

func (e *codedError) Code() ErrorCode { return e.code }
func (e *codedError) Data() any       { return e.data }
func (e *codedError) Unwrap() error   { return e.cause }

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

// New returns the error factory.
func New() Factory {
	return factory{}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var e Error
		if !As(err, &e) {
			return false
		}
		if e.Code() == code {
			return true
		}
		err = e.Unwrap()
	}

	return false
}
