package pharos

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// DefaultMethod is the controller method invoked when a handler reference
// does not name one.
const DefaultMethod = "handle"

// Handler is a handler object interface. Any object that implements this
// interface can be bound to an event.
type Handler interface {
	Handle(ctx *Context) error
}

// HandlerFunc is a function adapter that allows ordinary functions to be
// used as handlers. It is called with the dispatch context only; event
// arguments are available through ctx.Params.
type HandlerFunc func(ctx *Context) error

// Handle calls f. Implements Handler.Handle.
func (f HandlerFunc) Handle(ctx *Context) error {
	return f(ctx)
}

// ControllerMethod is a named member of a Controller. It receives the
// dependency container and the dispatch context.
type ControllerMethod func(container Container, ctx *Context) error

// Controller exposes named methods for handler references such as
// "#controllers/chat.send".
type Controller interface {
	Method(name string) (ControllerMethod, bool)
}

// Methods is a map backed Controller.
type Methods map[string]ControllerMethod

// Method returns the named method. Implements Controller.Method.
func (m Methods) Method(name string) (ControllerMethod, bool) {
	method, ok := m[name]
	return method, ok && method != nil
}

// ControllerConstructor creates a controller instance. It is called every
// time a referenced handler runs.
type ControllerConstructor func(ctx context.Context, container Container) (Controller, error)

// LazyController loads a controller constructor on demand.
type LazyController func(ctx context.Context) (ControllerConstructor, error)

// HandlerRef references a controller method. Build one with Ref or Lazy.
type HandlerRef struct {
	constructor ControllerConstructor
	loader      LazyController
	method      string
}

// Ref references a method on a controller whose constructor is known at
// registration time. The instance is still created at call time.
//
//	ws.On("chat:send", pharos.Ref(NewChatController, "send"), "room", "body")
func Ref(constructor ControllerConstructor, method ...string) HandlerRef {
	return HandlerRef{constructor: constructor, method: methodOrDefault(method)}
}

// Lazy references a method on a controller that is loaded on first use.
// Both the constructor and the instance are resolved at call time.
func Lazy(loader LazyController, method ...string) HandlerRef {
	return HandlerRef{loader: loader, method: methodOrDefault(method)}
}

func methodOrDefault(method []string) string {
	if len(method) == 0 || method[0] == "" {
		return DefaultMethod
	}
	return method[0]
}

type handlerKind int

const (
	directHandler handlerKind = iota
	moduleHandler
	constructorHandler
	lazyHandler
)

// resolvedHandler is the normalized form of every accepted handler shape.
// Direct handlers carry fn. The other kinds are resolved each time they are
// invoked.
type resolvedHandler struct {
	kind        handlerKind
	fn          HandlerFunc
	module      string
	constructor ControllerConstructor
	loader      LazyController
	method      string
}

// resolveHandler normalizes a handler. Only the type of the handler is
// checked here; a reference that cannot be loaded fails when invoked.
func resolveHandler(handler any) (resolvedHandler, error) {
	switch h := handler.(type) {
	case HandlerFunc:
		if h == nil {
			return resolvedHandler{}, fmt.Errorf("handler func is nil")
		}
		return resolvedHandler{kind: directHandler, fn: h}, nil
	case func(*Context) error:
		if h == nil {
			return resolvedHandler{}, fmt.Errorf("handler func is nil")
		}
		return resolvedHandler{kind: directHandler, fn: h}, nil
	case string:
		module, method := splitReference(h)
		return resolvedHandler{kind: moduleHandler, module: module, method: method}, nil
	case HandlerRef:
		return resolveRef(h)
	case *HandlerRef:
		if h == nil {
			return resolvedHandler{}, fmt.Errorf("handler reference is nil")
		}
		return resolveRef(*h)
	case Handler:
		if h == nil {
			return resolvedHandler{}, fmt.Errorf("handler is nil")
		}
		return resolvedHandler{kind: directHandler, fn: h.Handle}, nil
	case nil:
		return resolvedHandler{}, fmt.Errorf("handler is nil")
	}

	return resolvedHandler{}, fmt.Errorf("invalid handler type. Must be Handler, HandlerFunc, "+
		"func(*Context) error, string, or HandlerRef. Got: %s", reflect.TypeOf(handler))
}

func resolveRef(ref HandlerRef) (resolvedHandler, error) {
	method := ref.method
	if method == "" {
		method = DefaultMethod
	}
	switch {
	case ref.constructor != nil:
		return resolvedHandler{kind: constructorHandler, constructor: ref.constructor, method: method}, nil
	case ref.loader != nil:
		return resolvedHandler{kind: lazyHandler, loader: ref.loader, method: method}, nil
	}
	return resolvedHandler{}, fmt.Errorf("handler reference has no controller")
}

// splitReference splits "module.method" on the last dot.
func splitReference(ref string) (string, string) {
	i := strings.LastIndex(ref, ".")
	if i < 0 {
		return ref, DefaultMethod
	}
	module, method := ref[:i], ref[i+1:]
	if method == "" {
		method = DefaultMethod
	}
	return module, method
}

func (h resolvedHandler) invoke(ctx *Context, app *Application) error {
	if h.kind == directHandler {
		return h.fn(ctx)
	}

	constructor, err := h.loadConstructor(ctx, app)
	if err != nil {
		return err
	}

	container := ctx.container(app)
	controller, err := constructor(ctx.Context(), container)
	if err != nil {
		return fmt.Errorf("failed to construct controller for %s: %w", h, err)
	}
	if controller == nil {
		return fmt.Errorf("constructor for %s returned no controller", h)
	}

	method, ok := controller.Method(h.method)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMethodNotFound, h)
	}
	return method(container, ctx)
}

func (h resolvedHandler) loadConstructor(ctx *Context, app *Application) (ControllerConstructor, error) {
	switch h.kind {
	case constructorHandler:
		return h.constructor, nil
	case lazyHandler:
		constructor, err := h.loader(ctx.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to load controller for %s: %w", h, err)
		}
		if constructor == nil {
			return nil, fmt.Errorf("%w: lazy controller for %s", ErrModuleNotFound, h)
		}
		return constructor, nil
	}

	if h.module == "" {
		return nil, fmt.Errorf("%w: empty module reference", ErrModuleNotFound)
	}
	if app == nil || app.Modules == nil {
		return nil, fmt.Errorf("%w: no module loader for %q", ErrModuleNotFound, h.module)
	}
	constructor, err := app.Modules.Import(ctx.Context(), h.module)
	if err != nil {
		return nil, fmt.Errorf("failed to import %q: %w", h.module, err)
	}
	if constructor == nil {
		return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, h.module)
	}
	return constructor, nil
}

func (h resolvedHandler) String() string {
	switch h.kind {
	case directHandler:
		return "func"
	case moduleHandler:
		return h.module + "." + h.method
	case constructorHandler:
		return "ref." + h.method
	}
	return "lazy." + h.method
}
