// Package gorillaconnection lets the pharos socket server accept connections
// with github.com/gorilla/websocket instead of the default
// github.com/coder/websocket.
//
//	options := pharos.SocketOptions{Acceptor: gorillaconnection.NewAcceptor()}
package gorillaconnection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RobertWHurst/pharos"
)

const closeWait = time.Second

// Acceptor upgrades requests with a gorilla websocket.Upgrader.
type Acceptor struct {
	Upgrader websocket.Upgrader
}

var _ pharos.Acceptor = &Acceptor{}

// NewAcceptor creates an Acceptor with default buffer sizes. Origins are
// checked by the socket server before Accept runs, so the upgrader accepts
// every origin.
func NewAcceptor() *Acceptor {
	return &Acceptor{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// Accept upgrades the request and applies MaxMessageSize as the read
// limit. Implements pharos.Acceptor.Accept.
func (a *Acceptor) Accept(res http.ResponseWriter, req *http.Request, options pharos.SocketOptions) (pharos.SocketConnection, error) {
	conn, err := a.Upgrader.Upgrade(res, req, nil)
	if err != nil {
		return nil, err
	}
	if options.MaxMessageSize > 0 {
		conn.SetReadLimit(options.MaxMessageSize)
	}
	return New(conn), nil
}

// Connection is a pharos.SocketConnection over a gorilla websocket.Conn.
// Gorilla allows one concurrent writer, so writes are serialized.
type Connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var _ pharos.SocketConnection = &Connection{}

// New wraps a gorilla connection.
func New(conn *websocket.Conn) *Connection {
	return &Connection{conn: conn}
}

// Read reads the next text or binary message, skipping other frames. The
// connection is closed if ctx is done while waiting. Implements
// pharos.SocketConnection.Read.
func (c *Connection) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.Close()
	})
	defer stop()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Write sends data as a text message, honoring the deadline of ctx.
// Implements pharos.SocketConnection.Write.
func (c *Connection) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with the given status and closes the
// connection. Implements pharos.SocketConnection.Close.
func (c *Connection) Close(status pharos.Status, reason string) error {
	reason = pharos.CloseReason(reason)

	c.writeMu.Lock()
	writeErr := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(int(status), reason),
		time.Now().Add(closeWait),
	)
	c.writeMu.Unlock()

	closeErr := c.conn.Close()
	if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
		return writeErr
	}
	return closeErr
}
