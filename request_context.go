package pharos

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// RequestContext is the request scoped state of a connection, built once
// from the upgrade handshake by the ContextFactory.
type RequestContext struct {
	// ID uniquely identifies the connection's request.
	ID string

	// Request is the upgrade request.
	Request *http.Request

	// Resolver is the dependency resolution scope of the connection.
	Resolver Container

	// Session holds whatever session the host attached. pharos never reads
	// it.
	Session any

	mu     sync.RWMutex
	values map[string]any
}

// NewRequestContext creates a request context for an upgrade request.
func NewRequestContext(req *http.Request, resolver Container) *RequestContext {
	return &RequestContext{
		ID:       uuid.NewString(),
		Request:  req,
		Resolver: resolver,
		values:   map[string]any{},
	}
}

// Set stores a value for the lifetime of the connection.
func (r *RequestContext) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = map[string]any{}
	}
	r.values[key] = value
}

// Get returns a stored value or nil.
func (r *RequestContext) Get(key string) any {
	value, _ := r.Lookup(key)
	return value
}

// Lookup returns a stored value and whether it was set.
func (r *RequestContext) Lookup(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	return value, ok
}

// MustGet returns a stored value and panics if it was never set.
func (r *RequestContext) MustGet(key string) any {
	value, ok := r.Lookup(key)
	if !ok {
		panic("key not found in request context: " + key)
	}
	return value
}
