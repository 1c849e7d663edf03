package pharos

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Events emitted by the transport itself. Clients cannot send them.
const (
	// ConnectErrorEvent is sent to a client rejected by the middleware
	// chain, with a {"message": string} payload, right before the
	// connection is closed.
	ConnectErrorEvent = "connect_error"

	// DisconnectEvent is dispatched to the socket's own listeners when the
	// connection ends. Its only argument is the reason.
	DisconnectEvent = "disconnect"
)

// Disconnect reasons passed with DisconnectEvent.
const (
	ReasonServerDisconnect = "server disconnect"
	ReasonServerShutdown   = "server shutting down"
	ReasonTransportClose   = "transport close"
)

type socket struct {
	id         string
	request    *http.Request
	connection SocketConnection
	server     *SocketServer

	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration

	mu             sync.RWMutex
	requestContext *RequestContext
	listeners      map[string][]EventListener
	closed         bool
	closedReason   string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Socket = &socket{}

func newSocket(req *http.Request, connection SocketConnection, server *SocketServer, writeTimeout time.Duration) *socket {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(req.Context())
	return &socket{
		id:           uuid.NewString(),
		request:      req,
		connection:   connection,
		server:       server,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: writeTimeout,
		listeners:    map[string][]EventListener{},
	}
}

func (s *socket) ID() string {
	return s.id
}

func (s *socket) Request() *http.Request {
	return s.request
}

func (s *socket) Context() *RequestContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestContext
}

func (s *socket) SetContext(ctx *RequestContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestContext = ctx
}

func (s *socket) On(event string, listener EventListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

func (s *socket) Emit(event string, args ...any) error {
	data, err := encodeEventFrame(event, args)
	if err != nil {
		return err
	}
	return s.write(data)
}

// Disconnect closes the connection from the server side.
func (s *socket) Disconnect() error {
	return s.close(StatusNormalClosure, ReasonServerDisconnect)
}

func (s *socket) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *socket) write(data []byte) error {
	if s.isClosed() {
		return ErrSocketClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	defer cancel()
	return s.connection.Write(ctx, data)
}

func (s *socket) close(status Status, reason string) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.closedReason = reason
		s.mu.Unlock()

		s.closeErr = s.connection.Close(status, reason)
		s.cancel()
	})
	return s.closeErr
}

// readLoop dispatches incoming events until the connection fails or is
// closed. Events from one socket are handled one at a time, in order.
func (s *socket) readLoop() error {
	for {
		data, err := s.connection.Read(s.ctx)
		if err != nil {
			return err
		}

		frame, err := decodeEventFrame(data)
		if err != nil {
			s.server.log().WithSocketID(s.id).WithError(err).Debug("dropping invalid frame")
			continue
		}
		if frame.Event == ConnectErrorEvent || frame.Event == DisconnectEvent {
			s.server.log().WithSocketID(s.id).WithEvent(frame.Event).Debug("dropping reserved event from client")
			continue
		}

		s.dispatch(frame)
	}
}

// finish closes the connection if it is still open and tells the socket's
// listeners why it ended.
func (s *socket) finish() {
	s.mu.RLock()
	reason := s.closedReason
	s.mu.RUnlock()
	if reason == "" {
		reason = ReasonTransportClose
	}

	_ = s.close(StatusNormalClosure, "")
	s.dispatch(eventFrame{Event: DisconnectEvent, Args: []any{reason}})
}

// dispatch calls every listener bound to the event, in binding order.
func (s *socket) dispatch(frame eventFrame) {
	s.mu.RLock()
	listeners := append([]EventListener{}, s.listeners[frame.Event]...)
	s.mu.RUnlock()

	for _, listener := range listeners {
		err := callWithRecovery(func() error {
			listener(frame.Args...)
			return nil
		})
		if err != nil {
			s.server.log().WithSocketID(s.id).WithEvent(frame.Event).WithError(err).Error("socket listener panicked")
		}
	}
}
