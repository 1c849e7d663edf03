package ratelimit

import (
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/RobertWHurst/pharos"
)

// ErrRateLimited is returned to the transport when a remote address opens
// connections faster than its limit allows. The transport rejects the
// connection with a connect_error event.
var ErrRateLimited = errors.New("too many connections, try again later")

// DefaultIdleTimeout is used when Config.IdleTimeout is zero.
const DefaultIdleTimeout = 10 * time.Minute

// Config defines the token bucket applied to each remote address.
type Config struct {
	// ConnectionsPerSecond is the rate tokens are refilled at.
	ConnectionsPerSecond rate.Limit
	// Burst is the bucket capacity.
	Burst int
	// IdleTimeout is how long a remote address must stay quiet, with a full
	// bucket, before its bucket is dropped.
	IdleTimeout time.Duration
}

// DefaultConfig allows 5 connections per second with a burst of 10.
func DefaultConfig() Config {
	return Config{
		ConnectionsPerSecond: 5,
		Burst:                10,
		IdleTimeout:          DefaultIdleTimeout,
	}
}

// Middleware creates connection middleware that limits how often a single
// remote address may connect. Every remote address gets its own bucket;
// buckets of idle addresses are swept so memory follows the number of
// recently active clients.
//
// Example:
//
//	config.Middleware = append(config.Middleware, ratelimit.Middleware(ratelimit.DefaultConfig()))
func Middleware(config Config) pharos.HandlerFunc {
	limiters := newLimiterSet(config, time.Now)
	return func(ctx *pharos.Context) error {
		if !limiters.allow(remoteHost(ctx.Socket)) {
			return ErrRateLimited
		}
		return nil
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

func newLimiterSet(config Config, now func() time.Time) *limiterSet {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	return &limiterSet{
		config:    config,
		now:       now,
		limiters:  map[string]*limiterEntry{},
		lastSweep: now(),
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.config.IdleTimeout {
		s.sweep(now)
	}

	entry, ok := s.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.config.ConnectionsPerSecond, s.config.Burst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops buckets idle past the timeout. A bucket that has not refilled
// yet is kept so a client cannot reset its limit by waiting out the sweep.
func (s *limiterSet) sweep(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) < s.config.IdleTimeout {
			continue
		}
		if entry.limiter.TokensAt(now) < float64(s.config.Burst) {
			continue
		}
		delete(s.limiters, key)
	}
	s.lastSweep = now
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func remoteHost(socket pharos.Socket) string {
	if socket == nil || socket.Request() == nil {
		return ""
	}
	addr := socket.Request().RemoteAddr
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
