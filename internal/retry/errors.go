package retry

import "errors"

var (
	ErrInvalidPolicy = errors.New("invalid retry policy")
	ErrNilResponse   = errors.New("action returned neither response nor error")
	ErrPanic         = errors.New("action panicked")
)
