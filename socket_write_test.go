package pharos

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stuckConnection never completes a write until its context ends, like a
// client that stopped reading.
type stuckConnection struct{}

func (stuckConnection) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stuckConnection) Write(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stuckConnection) Close(Status, string) error {
	return nil
}

type recordingConnection struct {
	mu     sync.Mutex
	writes [][]byte
}

func (c *recordingConnection) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *recordingConnection) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *recordingConnection) Close(Status, string) error {
	return nil
}

func (c *recordingConnection) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func TestSocketWriteTimesOut(t *testing.T) {
	server := NewSocketServer()
	sock := newSocket(httptest.NewRequest("GET", "/socket", nil), stuckConnection{}, server, 50*time.Millisecond)

	start := time.Now()
	err := sock.Emit("news", "hello")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSocketWriteDefaultTimeout(t *testing.T) {
	sock := newSocket(httptest.NewRequest("GET", "/socket", nil), stuckConnection{}, NewSocketServer(), 0)
	assert.Equal(t, DefaultWriteTimeout, sock.writeTimeout)
}

func TestDeliverIsNotHeldUpBySlowSockets(t *testing.T) {
	server := NewSocketServer()
	req := httptest.NewRequest("GET", "/socket", nil)

	fast := &recordingConnection{}
	require.True(t, server.addSocket(newSocket(req, stuckConnection{}, server, 100*time.Millisecond)))
	require.True(t, server.addSocket(newSocket(req, stuckConnection{}, server, 100*time.Millisecond)))
	require.True(t, server.addSocket(newSocket(req, fast, server, 100*time.Millisecond)))

	start := time.Now()
	server.deliver([]byte(`{"event":"news","args":[]}`))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, fast.count())
}

func TestSocketOptionsDefaultWriteTimeout(t *testing.T) {
	assert.Equal(t, DefaultWriteTimeout, SocketOptions{}.withDefaults().WriteTimeout)
	assert.Equal(t, time.Second, SocketOptions{WriteTimeout: time.Second}.withDefaults().WriteTimeout)
}
