package httpdata

import (
	"errors"
	"fmt"
)

var (
	ErrNoFile = errors.New("download produced no file")
)

// ConfigError rejects a URL or base URL before any request is sent.
type ConfigError struct {
	URL    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("can't request '%s': %s", e.URL, e.Reason)
}

// FetchError is returned by the *Success variants when a call did not succeed.
type FetchError struct {
	TracePrefix string
	Op          string
	URL         string
	StatusCode  int
	Err         error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s%s '%s' failed", e.TracePrefix, e.Op, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
