package pharos

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ConnectionPattern is the reserved pattern of the route run once for each
// accepted connection.
const ConnectionPattern = "connection"

// Route binds an event pattern to a handler. Prefixes pushed onto a route
// are applied when its pattern is read, so a route can be prefixed by every
// group it belongs to.
type Route struct {
	app     *Application
	pattern string
	params  []string
	handler resolvedHandler

	mu       sync.RWMutex
	prefixes []string
}

// NewRoute creates a route. The handler may be a Handler, a HandlerFunc, a
// func(*Context) error, a "module.method" string, or a HandlerRef. The
// connection route never has parameters.
//
// Panics if the pattern is invalid or the handler is of an unsupported
// type.
func NewRoute(app *Application, pattern string, handler any, params ...string) *Route {
	if err := validateEventPattern(pattern); err != nil {
		panic("invalid route pattern: " + err.Error())
	}
	resolved, err := resolveHandler(handler)
	if err != nil {
		panic(err.Error())
	}
	if pattern == ConnectionPattern {
		params = nil
	}
	return &Route{
		app:     app,
		pattern: pattern,
		params:  append([]string{}, params...),
		handler: resolved,
	}
}

// Prefix pushes a prefix onto the route. Prefixes pushed later end up
// further from the base pattern, so an outer group's prefix, applied after
// the inner group's, comes first.
func (r *Route) Prefix(prefix string) *Route {
	if prefix == "" {
		return r
	}
	if err := validateEventPattern(prefix); err != nil {
		panic("invalid route prefix: " + err.Error())
	}
	r.mu.Lock()
	r.prefixes = append(r.prefixes, prefix)
	r.mu.Unlock()
	return r
}

// Pattern returns the effective event name: the prefixes in reverse push
// order followed by the base pattern.
func (r *Route) Pattern() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.prefixes) == 0 {
		return r.pattern
	}
	var b strings.Builder
	for i := len(r.prefixes) - 1; i >= 0; i-- {
		b.WriteString(r.prefixes[i])
	}
	b.WriteString(r.pattern)
	return b.String()
}

// BasePattern returns the pattern the route was created with.
func (r *Route) BasePattern() string {
	return r.pattern
}

// Params returns the route's parameter names.
func (r *Route) Params() []string {
	return append([]string{}, r.params...)
}

// Handle assigns the event arguments to ctx.Params and runs the handler.
// Arguments beyond the parameter names are dropped and missing ones are
// nil. Handler errors and panics are logged and returned.
func (r *Route) Handle(ctx *Context, args ...any) error {
	params := make(EventParams, len(r.params))
	for i, name := range r.params {
		if i < len(args) {
			params[name] = args[i]
		} else {
			params[name] = nil
		}
	}
	ctx.Params = params

	err := callWithRecovery(func() error {
		return r.handler.invoke(ctx, r.app)
	})
	if err != nil {
		fields := []zap.Field{zap.String("handler", r.handler.String())}
		if panicErr, ok := err.(*HandlerPanicError); ok {
			fields = append(fields, zap.String("stack", panicErr.Stack))
		}
		ctx.Logger().WithEvent(r.Pattern()).WithError(err).Error("websocket handler failed", fields...)
	}
	return err
}

// Descriptor describes the route for introspection.
func (r *Route) Descriptor() *RouteDescriptor {
	return &RouteDescriptor{
		Pattern:    r.Pattern(),
		Params:     r.Params(),
		Handler:    r.handler.String(),
		Connection: r.pattern == ConnectionPattern,
	}
}
