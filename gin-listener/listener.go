// Package ginlistener mounts pharos socket servers on a gin engine.
package ginlistener

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/RobertWHurst/pharos"
)

// Listener registers socket server handlers as GET routes on a gin engine.
type Listener struct {
	engine *gin.Engine

	mu       sync.RWMutex
	handlers map[string]http.Handler
}

var _ pharos.HostServer = &Listener{}

// New creates a Listener that mounts on engine.
func New(engine *gin.Engine) *Listener {
	return &Listener{
		engine:   engine,
		handlers: map[string]http.Handler{},
	}
}

// Handle mounts handler at path. gin rejects duplicate routes, so a path is
// registered once and later calls only replace the handler behind it.
func (l *Listener) Handle(path string, handler http.Handler) {
	l.mu.Lock()
	_, mounted := l.handlers[path]
	l.handlers[path] = handler
	l.mu.Unlock()

	if mounted {
		return
	}
	l.engine.GET(path, func(c *gin.Context) {
		l.mu.RLock()
		h := l.handlers[path]
		l.mu.RUnlock()
		gin.WrapH(h)(c)
	})
}

// Listener returns itself so it can be registered as the host server.
// Implements pharos.HostServer.Listener.
func (l *Listener) Listener() pharos.Listener {
	return l
}

// Engine returns the gin engine routes are mounted on.
func (l *Listener) Engine() *gin.Engine {
	return l.engine
}
