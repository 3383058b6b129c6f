package http

import (
	"errors"
	"fmt"
)

var errReadCanceled = errors.New("read canceled")

var (
	ErrInvalidHeaderName = errors.New("http: invalid header name")
	ErrMissingHeader     = errors.New("http: missing header")
	ErrTimeout           = errors.New("http: timeout")
	ErrTransport         = errors.New("http: transport error")
	ErrHeaderTooLarge    = errors.New("http: header line too large")
	ErrBodyTooLarge      = errors.New("http: body too large")
	ErrInvalidURL        = errors.New("http: invalid url")
	ErrInvalidPort       = errors.New("http: invalid port")
)

// ReadError reports the reader state a response read failed in.
type ReadError struct {
	State State
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("http: reading %s: %v", e.State, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
