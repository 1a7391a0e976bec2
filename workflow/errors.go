package workflow

import (
	"errors"
	"fmt"
)

// ErrCancelled resolves the outcome of a context that was cancelled before a
// result was completed.
var ErrCancelled = errors.New("workflow cancelled")

// ServerError is an explicit failure reported by the workflow service, either
// as a non-2xx status or as an envelope without a result.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("workflow server error %d: %s", e.Code, e.Message)
}

// ClientError wraps transport and serialization failures on this side of the
// wire.
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string {
	return "workflow client error: " + e.Err.Error()
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func clientErr(err error) error {
	if err == nil {
		return nil
	}
	return &ClientError{Err: err}
}
