package pharos

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/RobertWHurst/pharos/logger"
)

// WebSocket routes events from WebSocket connections to handlers. Routes
// are registered with On and Group, usually before Boot. Boot attaches a
// transport to the host's HTTP listener; Shutdown detaches it again.
//
//	ws := pharos.New(app, pharos.DefaultConfig())
//	ws.On("connection", onConnect)
//	ws.Group(func() {
//	    ws.On("send", sendMessage, "room", "body")
//	}).Prefix("chat:")
//
//	if err := ws.Boot(ctx); err != nil {
//	    return err
//	}
type WebSocket struct {
	app    *Application
	config Config

	routesMu        sync.RWMutex
	connectionRoute *Route
	eventRoutes     []*Route
	openGroups      []*RouteGroup

	lifecycleMu sync.Mutex
	gate        *listenerGate

	serverMu sync.RWMutex
	server   Transport
	logger   *logger.Logger
}

// New creates a WebSocket engine for the application.
func New(app *Application, config Config) *WebSocket {
	if app == nil {
		app = &Application{}
	}
	return &WebSocket{
		app:    app,
		config: config,
	}
}

// On registers a handler for an event. params names the event's positional
// arguments; they are exposed to the handler through ctx.Params.
//
// Registering ConnectionPattern replaces any previous connection route and
// ignores params. Routes registered after Boot only apply to connections
// accepted afterwards.
//
// Panics if the pattern is invalid or the handler is of an unsupported
// type.
func (w *WebSocket) On(pattern string, handler any, params ...string) *WebSocket {
	route := NewRoute(w.app, pattern, handler, params...)

	w.routesMu.Lock()
	defer w.routesMu.Unlock()

	if pattern == ConnectionPattern {
		w.connectionRoute = route
	} else {
		w.eventRoutes = append(w.eventRoutes, route)
	}
	for _, group := range w.openGroups {
		group.add(route)
	}
	return w
}

// Group collects every route registered while fn runs into a new group and
// returns it for prefixing. Groups nest; a route registered in a nested
// group also belongs to every enclosing group. fn must register its routes
// synchronously.
func (w *WebSocket) Group(fn func()) *RouteGroup {
	group := &RouteGroup{}

	w.routesMu.Lock()
	w.openGroups = append(w.openGroups, group)
	w.routesMu.Unlock()

	defer w.closeGroup(group)
	fn()

	return group
}

func (w *WebSocket) closeGroup(group *RouteGroup) {
	w.routesMu.Lock()
	defer w.routesMu.Unlock()

	for i := len(w.openGroups) - 1; i >= 0; i-- {
		if w.openGroups[i] == group {
			w.openGroups = append(w.openGroups[:i], w.openGroups[i+1:]...)
			return
		}
	}
}

// Routes describes the event routes in registration order.
func (w *WebSocket) Routes() []*RouteDescriptor {
	_, eventRoutes := w.snapshotRoutes()
	descriptors := make([]*RouteDescriptor, 0, len(eventRoutes))
	for _, route := range eventRoutes {
		descriptors = append(descriptors, route.Descriptor())
	}
	return descriptors
}

// ConnectionRoute returns the connection route, or nil.
func (w *WebSocket) ConnectionRoute() *Route {
	w.routesMu.RLock()
	defer w.routesMu.RUnlock()
	return w.connectionRoute
}

// Server returns the transport while booted, or nil. It bypasses routing
// entirely.
func (w *WebSocket) Server() Transport {
	w.serverMu.RLock()
	defer w.serverMu.RUnlock()
	return w.server
}

// Booted reports whether the engine currently owns a transport.
func (w *WebSocket) Booted() bool {
	return w.Server() != nil
}

// Boot attaches a new transport to the host listener and installs the
// middleware chain and connection handler. It is a no-op when already
// booted. When the container cannot provide the host server or its
// listener yet, Boot logs and returns nil without booting; call it again
// once the host is ready.
func (w *WebSocket) Boot(ctx context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.Server() != nil {
		return nil
	}

	log := w.resolveLogger(ctx)
	listener := w.resolveListener(ctx, log)
	if listener == nil {
		return nil
	}

	if w.gate == nil || w.gate.host != listener {
		w.gate = newListenerGate(listener)
	}

	server := w.app.transport()
	if loggable, ok := server.(interface{ SetLogger(*logger.Logger) }); ok {
		loggable.SetLogger(log)
	}
	if err := server.Attach(w.gate, w.config.SocketOptions); err != nil {
		w.gate.release()
		return fmt.Errorf("failed to attach websocket server: %w", err)
	}

	server.Use(initializeSocketContext(w.app, log))
	for i, entry := range w.config.Middleware {
		handler, err := resolveHandler(entry)
		if err != nil {
			log.WithError(err).Error("failed to load websocket middleware", zap.Int("index", i))
			continue
		}
		server.Use(w.connectionMiddleware(server, handler, log))
	}

	w.registerRoutes(server, log)

	w.serverMu.Lock()
	w.server = server
	w.logger = log
	w.serverMu.Unlock()

	log.Info("websocket server booted", zap.String("path", w.socketPath()))
	return nil
}

// Shutdown removes the connection handler, closes the transport and
// forgets it, so a later Boot creates a fresh one. It is a no-op when not
// booted. Handlers still running are not waited for.
func (w *WebSocket) Shutdown(ctx context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	w.serverMu.RLock()
	server, log := w.server, w.logger
	w.serverMu.RUnlock()
	if server == nil {
		return nil
	}

	w.unregisterRoutes(server)
	err := server.Close(ctx)
	if w.gate != nil {
		w.gate.release()
	}

	w.serverMu.Lock()
	w.server = nil
	w.serverMu.Unlock()

	if err != nil {
		log.WithError(err).Error("failed to close websocket server")
		return fmt.Errorf("failed to close websocket server: %w", err)
	}
	log.Info("websocket server shut down")
	return nil
}

// registerRoutes installs the single connection handler. Each accepted
// socket with a request context runs the connection route, then gets one
// listener per event route registered at that moment.
func (w *WebSocket) registerRoutes(server Transport, log *logger.Logger) {
	server.OnConnection(func(socket Socket) {
		socketLog := log.WithSocketID(socket.ID())

		if socket.Context() == nil {
			dispatchResult{stage: stageAccept, err: ErrMissingContext}.report(socketLog)
			if err := socket.Disconnect(); err != nil {
				socketLog.WithError(err).Warn("failed to disconnect socket")
			}
			return
		}

		connectionRoute, eventRoutes := w.snapshotRoutes()

		if connectionRoute != nil {
			ctx := NewContext(socket, server, socketLog)
			dispatchRoute(stageConnection, connectionRoute, ctx).report(socketLog)
		}

		for _, route := range eventRoutes {
			route := route // per-iteration copy; go directive is 1.21
			socket.On(route.Pattern(), func(args ...any) {
				ctx := NewContext(socket, server, socketLog)
				dispatchRoute(stageEvent, route, ctx, args...).report(socketLog)
			})
		}
	})
}

func (w *WebSocket) unregisterRoutes(server Transport) {
	server.RemoveAllListeners()
}

// connectionMiddleware adapts a configured middleware handler to the
// transport chain. Failures are logged and rejected through next.
func (w *WebSocket) connectionMiddleware(server Transport, handler resolvedHandler, log *logger.Logger) SocketMiddleware {
	return func(socket Socket, next NextFunc) {
		socketLog := log.WithSocketID(socket.ID())

		// Sockets without a context are disconnected by the connection
		// handler.
		if socket.Context() == nil {
			next(nil)
			return
		}

		ctx := NewContext(socket, server, socketLog)
		err := callWithRecovery(func() error {
			return handler.invoke(ctx, w.app)
		})
		result := dispatchResult{stage: stageMiddleware, pattern: handler.String(), err: err}
		result.report(socketLog)
		next(result.err)
	}
}

func (w *WebSocket) snapshotRoutes() (*Route, []*Route) {
	w.routesMu.RLock()
	defer w.routesMu.RUnlock()
	return w.connectionRoute, append([]*Route{}, w.eventRoutes...)
}

func (w *WebSocket) resolveLogger(ctx context.Context) *logger.Logger {
	if w.app.Container == nil {
		return logger.Nop()
	}
	service, err := w.app.Container.Resolve(ctx, "logger")
	if err != nil || service == nil {
		return logger.Nop()
	}
	switch l := service.(type) {
	case *logger.Logger:
		if l != nil {
			return l
		}
	case *zap.Logger:
		return logger.New(l)
	}
	return logger.Nop()
}

// resolveListener returns the host listener, or nil when the host is not
// ready.
func (w *WebSocket) resolveListener(ctx context.Context, log *logger.Logger) Listener {
	if w.app.Container == nil {
		log.Warn("websocket not booted: no container")
		return nil
	}
	service, err := w.app.Container.Resolve(ctx, "server")
	if err != nil {
		log.WithError(err).Warn("websocket not booted: failed to resolve host server")
		return nil
	}

	var listener Listener
	switch s := service.(type) {
	case HostServer:
		if s != nil {
			listener = s.Listener()
		}
	case Listener:
		listener = s
	}
	if listener == nil {
		log.Info("websocket not booted: host server is not ready")
		return nil
	}
	return listener
}

func (w *WebSocket) socketPath() string {
	if w.config.SocketOptions.Path == "" {
		return DefaultSocketPath
	}
	return w.config.SocketOptions.Path
}
