package pharos

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingContext is reported when an accepted socket reaches the
	// connection handler without a request context attached.
	ErrMissingContext = errors.New("socket has no request context")

	// ErrMiddlewareStalled is returned by the transport when a middleware
	// returns without calling next.
	ErrMiddlewareStalled = errors.New("middleware returned without calling next")

	ErrTransportClosed = errors.New("websocket server is closed")
	ErrSocketClosed    = errors.New("socket is closed")

	ErrMethodNotFound = errors.New("controller method not found")
	ErrModuleNotFound = errors.New("module not found")

	ErrInvalidEventFrame = errors.New("invalid event frame")
)

// HandlerPanicError wraps a value recovered from a panicking handler or
// middleware.
type HandlerPanicError struct {
	Value any
	Stack string
}

// Error describes the recovered value.
func (e *HandlerPanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "handler panicked: " + err.Error()
	}
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Unwrap returns the recovered value when it is an error.
func (e *HandlerPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
