package pharos

import (
	"context"
	"fmt"
	"net/http"
)

// Application bundles the host collaborators the WebSocket engine calls into.
// Only Container is required. Modules is needed for string handler
// references, Contexts defaults to NewRequestContext, and NewTransport
// defaults to NewSocketServer.
type Application struct {
	Container    Container
	Modules      ModuleLoader
	Contexts     ContextFactory
	NewTransport func() Transport
}

// Container resolves named host services. A nil service with a nil error
// means the service is not available yet, which is never an error.
//
// The engine resolves "server" (a HostServer) and "logger" (a
// *logger.Logger).
type Container interface {
	Resolve(ctx context.Context, name string) (any, error)
}

// ContainerFunc adapts a function to the Container interface.
type ContainerFunc func(ctx context.Context, name string) (any, error)

// Resolve calls f. Implements Container.Resolve.
func (f ContainerFunc) Resolve(ctx context.Context, name string) (any, error) {
	return f(ctx, name)
}

// Scoper is implemented by containers that can hand out a per-connection
// resolution scope. The bootstrap middleware uses it when available.
type Scoper interface {
	NewScope() Container
}

// ModuleLoader resolves a module reference (the part of a "module.method"
// handler string before the last dot) into a controller constructor. It is
// called every time the handler runs, never at registration.
type ModuleLoader interface {
	Import(ctx context.Context, ref string) (ControllerConstructor, error)
}

// ModuleLoaderFunc adapts a function to the ModuleLoader interface.
type ModuleLoaderFunc func(ctx context.Context, ref string) (ControllerConstructor, error)

// Import calls f. Implements ModuleLoader.Import.
func (f ModuleLoaderFunc) Import(ctx context.Context, ref string) (ControllerConstructor, error) {
	return f(ctx, ref)
}

// ModuleRegistry is a ModuleLoader backed by a map of module references.
//
//	modules := pharos.ModuleRegistry{
//	    "#controllers/chat_controller": NewChatController,
//	}
type ModuleRegistry map[string]ControllerConstructor

// Import looks ref up in the registry and fails with ErrModuleNotFound
// when it is missing. Implements ModuleLoader.Import.
func (r ModuleRegistry) Import(_ context.Context, ref string) (ControllerConstructor, error) {
	constructor, ok := r[ref]
	if !ok || constructor == nil {
		return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, ref)
	}
	return constructor, nil
}

// ContextFactory builds the request scoped context for a connection from its
// upgrade handshake. Returning a nil context without an error leaves the
// connection without a context, and the engine will disconnect it.
type ContextFactory interface {
	CreateContext(req *http.Request, res http.ResponseWriter, resolver Container) (*RequestContext, error)
}

// ContextFactoryFunc adapts a function to the ContextFactory interface.
type ContextFactoryFunc func(req *http.Request, res http.ResponseWriter, resolver Container) (*RequestContext, error)

// CreateContext calls f. Implements ContextFactory.CreateContext.
func (f ContextFactoryFunc) CreateContext(req *http.Request, res http.ResponseWriter, resolver Container) (*RequestContext, error) {
	return f(req, res, resolver)
}

func (a *Application) contextFactory() ContextFactory {
	if a.Contexts != nil {
		return a.Contexts
	}
	return ContextFactoryFunc(func(req *http.Request, _ http.ResponseWriter, resolver Container) (*RequestContext, error) {
		return NewRequestContext(req, resolver), nil
	})
}

func (a *Application) transport() Transport {
	if a.NewTransport != nil {
		return a.NewTransport()
	}
	return NewSocketServer()
}

func (a *Application) scope() Container {
	if scoper, ok := a.Container.(Scoper); ok {
		if scope := scoper.NewScope(); scope != nil {
			return scope
		}
	}
	return a.Container
}
