// Package pharos routes named events from persistent WebSocket connections
// to handlers.
//
// Handlers are registered per event name, organized into prefixed groups,
// and run behind a per-connection middleware chain. Every connection gets a
// request scoped context built from its upgrade request, so handlers can use
// the same services and session a request/response handler would.
//
// # Quick Start
//
//	ws := pharos.New(&pharos.Application{Container: container}, pharos.DefaultConfig())
//
//	ws.On("connection", func(ctx *pharos.Context) error {
//	    return ctx.Emit("welcome", ctx.Socket.ID())
//	})
//
//	ws.Group(func() {
//	    ws.On("send", func(ctx *pharos.Context) error {
//	        return ctx.Broadcast("message", ctx.Param("room"), ctx.Param("body"))
//	    }, "room", "body")
//	}).Prefix("chat:")
//
//	if err := ws.Boot(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Boot resolves "server" and "logger" from the container. The server is
// either a HostServer or a Listener such as *http.ServeMux; the built-in
// transport mounts itself on it at SocketOptions.Path.
//
// # Event Format
//
// The built-in transport exchanges JSON frames carrying an event name and
// positional arguments:
//
//	{"event": "chat:send", "args": ["lobby", "hello"]}
//
// A route registered with parameter names receives the arguments in
// ctx.Params, by position. Extra arguments are dropped and missing ones are
// nil.
//
// # Handlers
//
// A handler is a func(*Context) error, a HandlerFunc, a Handler, a
// "module.method" string resolved through the application's ModuleLoader,
// or a controller reference built with Ref or Lazy. References are resolved
// each time the handler runs; a reference that cannot be resolved fails
// that invocation only.
//
// Handler errors and panics are logged and contained: the connection stays
// open and its other events are unaffected.
//
// # Groups
//
// Routes registered inside Group belong to the group and to every group
// enclosing it. Prefixes applied to an outer group end up first:
//
//	ws.Group(func() {
//	    ws.Group(func() {
//	        ws.On("message", handler)
//	    }).Prefix("chat:")
//	}).Prefix("v1:")
//
//	// clients emit "v1:chat:message"
package pharos
