// Package navaroslistener mounts pharos socket servers in front of a
// github.com/RobertWHurst/navaros router.
//
//	listener := navaroslistener.New()
//	router := navaros.NewRouter()
//	http.ListenAndServe(":8080", listener.WrapRouter(router))
//
// Register the listener with the host container under "server" and boot the
// engine; the socket server mounts itself on the listener.
//
// Upgrade requests are handed over before the navaros router runs, so the
// router's pooled contexts never see a hijacked connection.
package navaroslistener

import (
	"net/http"
	"strings"
	"sync"

	"github.com/RobertWHurst/navaros"

	"github.com/RobertWHurst/pharos"
)

// Listener collects the handlers mounted by the socket server.
type Listener struct {
	mu       sync.RWMutex
	handlers map[string]http.Handler
}

var _ pharos.HostServer = &Listener{}

// New creates a Listener with no mounted paths.
func New() *Listener {
	return &Listener{handlers: map[string]http.Handler{}}
}

// Handle mounts handler at path. Mounting a path again replaces its handler.
// Implements pharos.Listener.Handle.
func (l *Listener) Handle(path string, handler http.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[path] = handler
}

// Listener returns itself so it can be registered as the host server.
// Implements pharos.HostServer.Listener.
func (l *Listener) Listener() pharos.Listener {
	return l
}

// Wrap returns an http.Handler that serves websocket upgrade requests for a
// mounted path and passes every other request to next, usually a
// *navaros.Router.
func (l *Listener) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if handler := l.lookup(req.URL.Path); handler != nil && isUpgradeRequest(req) {
			handler.ServeHTTP(res, req)
			return
		}
		next.ServeHTTP(res, req)
	})
}

// WrapRouter is Wrap for a navaros router.
func (l *Listener) WrapRouter(router *navaros.Router) http.Handler {
	return l.Wrap(router)
}

func (l *Listener) lookup(path string) http.Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handlers[path]
}

func isUpgradeRequest(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}
