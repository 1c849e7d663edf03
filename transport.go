package pharos

import (
	"context"
	"net/http"
)

// NextFunc continues a transport middleware chain. Passing a non-nil error
// rejects the connection.
type NextFunc func(err error)

// SocketMiddleware runs once per accepted connection, in the order it was
// added with Transport.Use. It must call next exactly once, synchronously.
type SocketMiddleware func(socket Socket, next NextFunc)

// EventListener receives the positional arguments of an event delivered to
// a socket.
type EventListener func(args ...any)

// Transport is the real-time server the engine drives. SocketServer is the
// built-in implementation; hosts may provide their own.
type Transport interface {
	// Attach binds the transport to the host listener.
	Attach(listener Listener, options SocketOptions) error

	// Use appends a middleware to the per-connection chain.
	Use(middleware SocketMiddleware)

	// OnConnection registers a handler called for each connection that
	// passed the middleware chain.
	OnConnection(handler func(socket Socket))

	// Emit broadcasts an event to every connected socket.
	Emit(event string, args ...any) error

	// RemoveAllListeners drops every connection handler.
	RemoveAllListeners()

	// Close stops accepting connections and closes the open ones.
	Close(ctx context.Context) error
}

// Socket is a single accepted connection.
type Socket interface {
	ID() string

	// Request is the HTTP upgrade request that opened the connection.
	Request() *http.Request

	// Context returns the request context attached by the bootstrap
	// middleware, or nil.
	Context() *RequestContext
	SetContext(ctx *RequestContext)

	// On binds a listener for an event on this socket only. Every listener
	// bound to an event fires, in binding order.
	On(event string, listener EventListener)

	Emit(event string, args ...any) error
	Disconnect() error
}

// Listener is the host HTTP binding a transport mounts itself on.
// *http.ServeMux satisfies it.
type Listener interface {
	Handle(pattern string, handler http.Handler)
}

// HostServer is the host's HTTP server, resolved from the container as
// "server". A nil Listener means the host is not ready yet.
type HostServer interface {
	Listener() Listener
}
