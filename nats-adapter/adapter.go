// Package natsadapter fans websocket broadcasts out across nodes over NATS.
//
// Every node publishes its broadcast frames to a shared subject and delivers
// frames received on that subject to its own sockets, the sender included.
package natsadapter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/RobertWHurst/pharos"
	"github.com/RobertWHurst/pharos/logger"
)

// DefaultSubject is used when New is given an empty subject.
const DefaultSubject = "pharos.broadcast"

// ErrNotBound is returned by Broadcast before Bind has been called.
var ErrNotBound = errors.New("nats adapter is not bound")

// Conn is the subset of *nats.Conn the adapter needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// Adapter is a pharos.Adapter backed by a NATS subject.
type Adapter struct {
	conn    Conn
	subject string
	logger  *logger.Logger

	mu          sync.Mutex
	bound       bool
	unsubscribe func() error
}

var _ pharos.Adapter = &Adapter{}

// New creates an adapter publishing on subject. The connection is owned by
// the caller; Close only drops the subscription so the adapter can be bound
// again after a reboot.
func New(conn Conn, subject string) *Adapter {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Adapter{
		conn:    conn,
		subject: subject,
		logger:  logger.Nop(),
	}
}

// WithLogger sets the logger used to report publish and subscription
// failures.
func (a *Adapter) WithLogger(log *logger.Logger) *Adapter {
	if log != nil {
		a.logger = log
	}
	return a
}

// Subject returns the subject frames are published on.
func (a *Adapter) Subject() string {
	return a.subject
}

// Bind subscribes to the subject and hands every received frame to
// deliver. An adapter can be bound again after Close. Implements
// pharos.Adapter.Bind.
func (a *Adapter) Bind(deliver func(frame []byte)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bound {
		return fmt.Errorf("nats adapter already bound to %s", a.subject)
	}

	sub, err := a.conn.Subscribe(a.subject, func(msg *nats.Msg) {
		deliver(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", a.subject, err)
	}

	a.bound = true
	a.unsubscribe = func() error {
		if sub == nil {
			return nil
		}
		return sub.Unsubscribe()
	}
	a.logger.Debug("nats adapter bound", zap.String("subject", a.subject))
	return nil
}

// Broadcast publishes the frame on the subject. Every bound adapter,
// this one included, delivers it. Implements pharos.Adapter.Broadcast.
func (a *Adapter) Broadcast(frame []byte) error {
	a.mu.Lock()
	bound := a.bound
	a.mu.Unlock()

	if !bound {
		return ErrNotBound
	}
	if err := a.conn.Publish(a.subject, frame); err != nil {
		a.logger.Error("failed to publish websocket broadcast",
			zap.String("subject", a.subject),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to %s: %w", a.subject, err)
	}
	return nil
}

// Close drops the subscription. The NATS connection stays open.
// Implements pharos.Adapter.Close.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.bound {
		return nil
	}
	a.bound = false
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	if err := unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", a.subject, err)
	}
	return nil
}

// Connect dials a NATS server with reconnection enabled and connection
// state changes reported to log.
func Connect(url, name string, log *logger.Logger) (*nats.Conn, error) {
	if log == nil {
		log = logger.Nop()
	}

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			} else {
				log.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
