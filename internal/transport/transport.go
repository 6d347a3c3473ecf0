// Package transport sends single HTTP requests. It has no retry logic of its own.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc lets a plain function act as a Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError is the attempt error for a response with an unaccepted status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsStatus reports whether err wraps a StatusError carrying code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == code
	}
	return false
}

// CookieJar keeps cookies across requests of one identity.
type CookieJar interface {
	Cookies() map[string]string
	SetCookie(key, value string)
}
