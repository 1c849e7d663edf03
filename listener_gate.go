package pharos

import (
	"net/http"
	"sync"
)

// listenerGate sits between a transport and the host listener. Each path is
// mounted on the host once; later transports swap the handler behind it.
// Host routers such as http.ServeMux refuse a second registration of the
// same pattern, so this is what lets the engine boot again after a
// shutdown.
type listenerGate struct {
	host Listener

	mu      sync.Mutex
	mounted map[string]*gatedHandler
}

var _ Listener = &listenerGate{}

func newListenerGate(host Listener) *listenerGate {
	return &listenerGate{
		host:    host,
		mounted: map[string]*gatedHandler{},
	}
}

func (g *listenerGate) Handle(path string, handler http.Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if mounted, ok := g.mounted[path]; ok {
		mounted.set(handler)
		return
	}
	mounted := &gatedHandler{}
	mounted.set(handler)
	g.mounted[path] = mounted
	g.host.Handle(path, mounted)
}

// release detaches every handler. Requests answer 503 until the next
// transport attaches.
func (g *listenerGate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, mounted := range g.mounted {
		mounted.set(nil)
	}
}

type gatedHandler struct {
	mu      sync.RWMutex
	handler http.Handler
}

func (h *gatedHandler) set(handler http.Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *gatedHandler) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()

	if handler == nil {
		http.Error(res, "websocket server is not running", http.StatusServiceUnavailable)
		return
	}
	handler.ServeHTTP(res, req)
}
