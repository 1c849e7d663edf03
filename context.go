package pharos

import (
	"context"

	"github.com/RobertWHurst/pharos/logger"
)

// Context is handed to handlers and connection middleware. A new Context is
// assembled for every event delivery, so Params only ever holds the
// arguments of the event being handled. The embedded RequestContext is
// shared by every Context of the same connection.
type Context struct {
	*RequestContext

	// Socket is the connection the event arrived on.
	Socket Socket

	// Server is the transport the socket belongs to. Emitting on it
	// broadcasts to every connection.
	Server Transport

	// Params maps the route's parameter names to the event's positional
	// arguments.
	Params EventParams

	logger *logger.Logger
}

// NewContext assembles a dispatch context for a socket. The request context
// is taken from the socket.
func NewContext(socket Socket, server Transport, log *logger.Logger) *Context {
	if log == nil {
		log = logger.Nop()
	}
	ctx := &Context{
		Socket: socket,
		Server: server,
		Params: EventParams{},
		logger: log,
	}
	if socket != nil {
		ctx.RequestContext = socket.Context()
	}
	return ctx
}

// Context returns the context.Context of the connection's upgrade request.
// It is cancelled when the connection ends.
func (c *Context) Context() context.Context {
	if c.Socket != nil {
		if req := c.Socket.Request(); req != nil {
			return req.Context()
		}
	}
	return context.Background()
}

// Logger returns the engine logger scoped to the socket.
func (c *Context) Logger() *logger.Logger {
	if c.logger == nil {
		return logger.Nop()
	}
	return c.logger
}

// Emit sends an event to this connection only.
func (c *Context) Emit(event string, args ...any) error {
	return c.Socket.Emit(event, args...)
}

// Broadcast sends an event to every connection of the server.
func (c *Context) Broadcast(event string, args ...any) error {
	if c.Server == nil {
		return ErrTransportClosed
	}
	return c.Server.Emit(event, args...)
}

// Param returns the named event argument. Lookup is case-insensitive.
func (c *Context) Param(name string) any {
	return c.Params.Get(name)
}

func (c *Context) container(app *Application) Container {
	if c.RequestContext != nil && c.RequestContext.Resolver != nil {
		return c.RequestContext.Resolver
	}
	if app != nil {
		return app.Container
	}
	return nil
}
