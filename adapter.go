package pharos

import "sync"

// Adapter carries broadcast frames between servers. A server binds its
// local delivery function once on attach; Broadcast must eventually call
// the delivery function of every bound server, including the sender's.
type Adapter interface {
	Bind(deliver func(frame []byte)) error
	Broadcast(frame []byte) error
	Close() error
}

// LocalAdapter delivers broadcasts within the process only.
type LocalAdapter struct {
	mu       sync.RWMutex
	delivers []func(frame []byte)
}

var _ Adapter = &LocalAdapter{}

// NewLocalAdapter creates an adapter with no bound servers.
func NewLocalAdapter() *LocalAdapter {
	return &LocalAdapter{}
}

// Bind adds a server's delivery function. Implements Adapter.Bind.
func (a *LocalAdapter) Bind(deliver func(frame []byte)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delivers = append(a.delivers, deliver)
	return nil
}

// Broadcast hands the frame to every bound delivery function, in bind
// order. Implements Adapter.Broadcast.
func (a *LocalAdapter) Broadcast(frame []byte) error {
	a.mu.RLock()
	delivers := append([]func([]byte){}, a.delivers...)
	a.mu.RUnlock()

	for _, deliver := range delivers {
		deliver(frame)
	}
	return nil
}

// Close drops every bound delivery function. Implements Adapter.Close.
func (a *LocalAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delivers = nil
	return nil
}
