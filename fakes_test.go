package pharos_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/RobertWHurst/pharos"
	"github.com/RobertWHurst/pharos/logger"
)

type mapContainer struct {
	mu       sync.Mutex
	services map[string]any
}

func newContainer(services map[string]any) *mapContainer {
	if services == nil {
		services = map[string]any{}
	}
	return &mapContainer{services: services}
}

func (c *mapContainer) Resolve(_ context.Context, name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.services[name], nil
}

func (c *mapContainer) set(name string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

type fakeHostServer struct {
	listener pharos.Listener
}

func (s *fakeHostServer) Listener() pharos.Listener {
	return s.listener
}

type fakeListener struct {
	mu       sync.Mutex
	handlers map[string]http.Handler
}

func (l *fakeListener) Handle(path string, handler http.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handlers == nil {
		l.handlers = map[string]http.Handler{}
	}
	if _, ok := l.handlers[path]; ok {
		panic("path mounted twice: " + path)
	}
	l.handlers[path] = handler
}

type fakeTransport struct {
	mu           sync.Mutex
	attachCount  int
	options      pharos.SocketOptions
	middleware   []pharos.SocketMiddleware
	handlers     []func(socket pharos.Socket)
	removeCount  int
	closeCount   int
	emitted      []emitted
	closeErr     error
	attachedPath string
}

type emitted struct {
	event string
	args  []any
}

var _ pharos.Transport = &fakeTransport{}

func (t *fakeTransport) Attach(listener pharos.Listener, options pharos.SocketOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attachCount++
	t.options = options
	t.attachedPath = options.Path
	if t.attachedPath == "" {
		t.attachedPath = pharos.DefaultSocketPath
	}
	listener.Handle(t.attachedPath, http.NotFoundHandler())
	return nil
}

func (t *fakeTransport) Use(middleware pharos.SocketMiddleware) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.middleware = append(t.middleware, middleware)
}

func (t *fakeTransport) OnConnection(handler func(socket pharos.Socket)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

func (t *fakeTransport) Emit(event string, args ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitted = append(t.emitted, emitted{event: event, args: args})
	return nil
}

func (t *fakeTransport) RemoveAllListeners() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeCount++
	t.handlers = nil
}

func (t *fakeTransport) Close(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCount++
	return t.closeErr
}

// connect runs a socket through the middleware chain and the connection
// handlers, the way a transport does on accept.
func (t *fakeTransport) connect(socket pharos.Socket) error {
	t.mu.Lock()
	chain := append([]pharos.SocketMiddleware{}, t.middleware...)
	handlers := append([]func(pharos.Socket){}, t.handlers...)
	t.mu.Unlock()

	for _, middleware := range chain {
		called := false
		var chainErr error
		middleware(socket, func(err error) {
			called = true
			chainErr = err
		})
		if !called {
			return pharos.ErrMiddlewareStalled
		}
		if chainErr != nil {
			return chainErr
		}
	}
	for _, handler := range handlers {
		handler(socket)
	}
	return nil
}

type fakeSocket struct {
	mu           sync.Mutex
	id           string
	request      *http.Request
	ctx          *pharos.RequestContext
	listeners    map[string][]pharos.EventListener
	boundEvents  []string
	emitted      []emitted
	disconnected int
}

var _ pharos.Socket = &fakeSocket{}

func newFakeSocket(id string) *fakeSocket {
	return &fakeSocket{
		id:        id,
		request:   httptest.NewRequest("GET", "http://pharos.test/socket", nil),
		listeners: map[string][]pharos.EventListener{},
	}
}

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Request() *http.Request { return s.request }

func (s *fakeSocket) Context() *pharos.RequestContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *fakeSocket) SetContext(ctx *pharos.RequestContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

func (s *fakeSocket) On(event string, listener pharos.EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
	s.boundEvents = append(s.boundEvents, event)
}

func (s *fakeSocket) Emit(event string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, emitted{event: event, args: args})
	return nil
}

func (s *fakeSocket) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected++
	return nil
}

// fire delivers an event to every listener bound to it.
func (s *fakeSocket) fire(event string, args ...any) {
	s.mu.Lock()
	listeners := append([]pharos.EventListener{}, s.listeners[event]...)
	s.mu.Unlock()
	for _, listener := range listeners {
		listener(args...)
	}
}

func (s *fakeSocket) bound() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.boundEvents...)
}

func (s *fakeSocket) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// testHarness wires an engine to fake collaborators.
type testHarness struct {
	ws         *pharos.WebSocket
	container  *mapContainer
	transports []*fakeTransport
	logs       *observer.ObservedLogs
	mu         sync.Mutex
}

func newHarness(config pharos.Config, configure ...func(app *pharos.Application)) *testHarness {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &testHarness{logs: logs}
	h.container = newContainer(map[string]any{
		"server": &fakeHostServer{listener: &fakeListener{}},
		"logger": logger.New(zap.New(core)),
	})

	app := &pharos.Application{
		Container: h.container,
		NewTransport: func() pharos.Transport {
			h.mu.Lock()
			defer h.mu.Unlock()
			t := &fakeTransport{}
			h.transports = append(h.transports, t)
			return t
		},
	}
	for _, fn := range configure {
		fn(app)
	}
	h.ws = pharos.New(app, config)
	return h
}

func (h *testHarness) transport() *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.transports) == 0 {
		return nil
	}
	return h.transports[len(h.transports)-1]
}

func (h *testHarness) transportCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transports)
}

func (h *testHarness) messages() []string {
	entries := h.logs.All()
	messages := make([]string, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, entry.Message)
	}
	return messages
}
