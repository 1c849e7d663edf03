package pharos

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// SocketConnection is the raw connection under a socket. Implementations
// exist for github.com/coder/websocket (WebSocketConnection) and, in the
// gorilla-connection package, github.com/gorilla/websocket.
type SocketConnection interface {
	// Read blocks until the next text or binary message arrives.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a text message.
	Write(ctx context.Context, data []byte) error

	Close(status Status, reason string) error
}

// Acceptor upgrades an HTTP request to a SocketConnection. Origin checks
// have already been done by the server when Accept is called. On failure
// the acceptor writes the HTTP error response itself.
type Acceptor interface {
	Accept(res http.ResponseWriter, req *http.Request, options SocketOptions) (SocketConnection, error)
}

// CoderAcceptor accepts connections with github.com/coder/websocket. It is
// the default Acceptor.
type CoderAcceptor struct {
	// CompressionMode is passed to websocket.Accept.
	CompressionMode websocket.CompressionMode
}

var _ Acceptor = &CoderAcceptor{}

// Accept upgrades the request and applies MaxMessageSize as the read
// limit. Implements Acceptor.Accept.
func (a *CoderAcceptor) Accept(res http.ResponseWriter, req *http.Request, options SocketOptions) (SocketConnection, error) {
	conn, err := websocket.Accept(res, req, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    a.CompressionMode,
	})
	if err != nil {
		return nil, err
	}
	if options.MaxMessageSize > 0 {
		conn.SetReadLimit(options.MaxMessageSize)
	}
	return NewWebSocketConnection(conn), nil
}

// WebSocketConnection is a SocketConnection implementation that wraps
// github.com/coder/websocket.Conn.
type WebSocketConnection struct {
	webSocketConnection *websocket.Conn
}

var _ SocketConnection = &WebSocketConnection{}

// NewWebSocketConnection creates a WebSocketConnection from a
// github.com/coder/websocket.Conn.
func NewWebSocketConnection(websocketConnection *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{
		webSocketConnection: websocketConnection,
	}
}

// Read reads the next message from the connection, blocking until one
// arrives or ctx is done. Implements SocketConnection.Read.
func (c *WebSocketConnection) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.webSocketConnection.Read(ctx)
	return data, err
}

// Write sends data as a text message. Implements SocketConnection.Write.
func (c *WebSocketConnection) Write(ctx context.Context, data []byte) error {
	return c.webSocketConnection.Write(ctx, websocket.MessageText, data)
}

// Close performs the closing handshake with the given status. The reason
// is truncated to fit a control frame. Implements SocketConnection.Close.
func (c *WebSocketConnection) Close(status Status, reason string) error {
	return c.webSocketConnection.Close(status, CloseReason(reason))
}
