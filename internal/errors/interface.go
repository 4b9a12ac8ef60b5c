package errors

// ErrorCode identifies a failure class. Codes are namespaced per package.
type ErrorCode string

// Error is a coded error carrying an optional payload and cause.
type Error interface {
	error
	Code() ErrorCode
	Data() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
