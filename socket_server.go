package pharos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RobertWHurst/pharos/logger"
)

// SocketServer is the built-in Transport. It upgrades requests on the path
// it is attached to, runs the middleware chain and connection handlers for
// each new socket, then reads event frames until the socket closes.
type SocketServer struct {
	mu                 sync.RWMutex
	options            SocketOptions
	origins            *OriginMatcher
	attached           bool
	closed             bool
	middleware         []SocketMiddleware
	connectionHandlers []func(socket Socket)
	sockets            map[string]*socket
	logger             *logger.Logger
}

var _ Transport = &SocketServer{}
var _ http.Handler = &SocketServer{}

// NewSocketServer creates an unattached SocketServer.
func NewSocketServer() *SocketServer {
	return &SocketServer{
		sockets: map[string]*socket{},
	}
}

// SetLogger sets the logger used for transport level events.
func (s *SocketServer) SetLogger(l *logger.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

func (s *SocketServer) log() *logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return logger.Nop()
	}
	return s.logger
}

// Attach mounts the server on the listener at options.Path and binds it to
// the broadcast adapter. A server can only be attached once.
func (s *SocketServer) Attach(listener Listener, options SocketOptions) error {
	options = options.withDefaults()
	origins, err := NewOriginMatcher(options.Origins)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrTransportClosed
	}
	if s.attached {
		s.mu.Unlock()
		return errors.New("websocket server is already attached")
	}
	s.options = options
	s.origins = origins
	s.attached = true
	s.mu.Unlock()

	if err := options.Adapter.Bind(s.deliver); err != nil {
		return fmt.Errorf("failed to bind adapter: %w", err)
	}
	listener.Handle(options.Path, s)
	return nil
}

// Use appends middleware to the chain run for each new socket.
// Implements Transport.Use.
func (s *SocketServer) Use(middleware SocketMiddleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, middleware)
}

// OnConnection adds a handler called for each socket that passes the
// middleware chain. Implements Transport.OnConnection.
func (s *SocketServer) OnConnection(handler func(socket Socket)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionHandlers = append(s.connectionHandlers, handler)
}

// RemoveAllListeners drops every connection handler. Sockets accepted
// afterwards still run the middleware chain. Implements
// Transport.RemoveAllListeners.
func (s *SocketServer) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionHandlers = nil
}

// Emit broadcasts an event to every socket reachable through the adapter.
func (s *SocketServer) Emit(event string, args ...any) error {
	s.mu.RLock()
	usable := s.attached && !s.closed
	adapter := s.options.Adapter
	s.mu.RUnlock()
	if !usable {
		return ErrTransportClosed
	}

	data, err := encodeEventFrame(event, args)
	if err != nil {
		return err
	}
	return adapter.Broadcast(data)
}

// SocketCount returns the number of open sockets on this server.
func (s *SocketServer) SocketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sockets)
}

// Close stops accepting connections, closes every open socket with
// StatusGoingAway and closes the adapter. It returns early with the
// context's error if the sockets do not close in time.
func (s *SocketServer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sockets := make([]*socket, 0, len(s.sockets))
	for _, sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	adapter := s.options.Adapter
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sock := range sockets {
		wg.Add(1)
		go func(sock *socket) {
			defer wg.Done()
			_ = sock.close(StatusGoingAway, ReasonServerShutdown)
		}(sock)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if adapter != nil {
		if closeErr := adapter.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close adapter: %w", closeErr)
		}
	}
	return err
}

// ServeHTTP upgrades the request and drives the socket until it closes.
func (s *SocketServer) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	s.mu.RLock()
	running := s.attached && !s.closed
	options := s.options
	origins := s.origins
	s.mu.RUnlock()

	if !running {
		http.Error(res, "websocket server is not running", http.StatusServiceUnavailable)
		return
	}
	if !isWebsocketUpgradeRequest(req) {
		res.WriteHeader(http.StatusBadRequest)
		_, _ = res.Write([]byte("Bad Request. Expected websocket upgrade request"))
		return
	}
	if !origins.Allow(req) {
		s.log().Warn("rejected websocket origin")
		http.Error(res, "Forbidden. Origin not allowed", http.StatusForbidden)
		return
	}

	connection, err := options.Acceptor.Accept(res, req, options)
	if err != nil {
		s.log().WithError(err).Warn("failed to accept websocket connection")
		return
	}
	s.handleConnection(req, connection, options.WriteTimeout)
}

func (s *SocketServer) handleConnection(req *http.Request, connection SocketConnection, writeTimeout time.Duration) {
	sock := newSocket(req, connection, s, writeTimeout)
	log := s.log().WithSocketID(sock.id)

	if err := s.runMiddleware(sock); err != nil {
		log.WithError(err).Debug("socket rejected by middleware")
		_ = sock.Emit(ConnectErrorEvent, map[string]any{"message": err.Error()})
		_ = sock.close(StatusPolicyViolation, err.Error())
		return
	}

	if !s.addSocket(sock) {
		_ = sock.close(StatusGoingAway, ReasonServerShutdown)
		return
	}
	defer s.removeSocket(sock.id)

	s.mu.RLock()
	handlers := append([]func(Socket){}, s.connectionHandlers...)
	s.mu.RUnlock()

	for _, handler := range handlers {
		err := callWithRecovery(func() error {
			handler(sock)
			return nil
		})
		if err != nil {
			log.WithError(err).Error("connection handler panicked")
		}
	}

	if err := sock.readLoop(); err != nil {
		log.WithError(err).Debug("socket read loop ended")
	}
	sock.finish()
}

// runMiddleware runs the chain in order. Each middleware must call next
// before returning.
func (s *SocketServer) runMiddleware(sock Socket) error {
	s.mu.RLock()
	chain := append([]SocketMiddleware{}, s.middleware...)
	s.mu.RUnlock()

	for _, middleware := range chain {
		var once sync.Once
		var called atomic.Bool
		var chainErr error

		err := callWithRecovery(func() error {
			middleware(sock, func(err error) {
				once.Do(func() {
					chainErr = err
					called.Store(true)
				})
			})
			return nil
		})
		if err != nil {
			return err
		}
		if !called.Load() {
			return ErrMiddlewareStalled
		}
		if chainErr != nil {
			return chainErr
		}
	}
	return nil
}

func (s *SocketServer) addSocket(sock *socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sockets[sock.id] = sock
	return true
}

func (s *SocketServer) removeSocket(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, id)
}

// deliver writes a broadcast frame to every local socket. Writes run
// concurrently, so a slow socket delays the broadcast by at most its write
// timeout.
func (s *SocketServer) deliver(frame []byte) {
	s.mu.RLock()
	sockets := make([]*socket, 0, len(s.sockets))
	for _, sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sock := range sockets {
		wg.Add(1)
		go func(sock *socket) {
			defer wg.Done()
			if err := sock.write(frame); err != nil && !errors.Is(err, ErrSocketClosed) {
				s.log().WithSocketID(sock.id).WithError(err).Debug("failed to deliver broadcast")
			}
		}(sock)
	}
	wg.Wait()
}

func isWebsocketUpgradeRequest(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}
