package pharos

import "time"

// Config configures a WebSocket engine.
type Config struct {
	// Middleware lists the connection middleware, run in order after the
	// bootstrap middleware. Entries take any form accepted by On: a
	// HandlerFunc, a Handler, a "module.method" string, or a HandlerRef.
	Middleware []any

	// SocketOptions is passed unchanged to Transport.Attach.
	SocketOptions SocketOptions
}

// SocketOptions configures the transport.
type SocketOptions struct {
	// Path is where the transport is mounted on the host listener.
	Path string `mapstructure:"path"`

	// Origins lists the allowed Origin header patterns. "*" matches
	// anything and is the default.
	Origins []string `mapstructure:"origins"`

	// MaxMessageSize caps the size of a single frame in bytes. Zero keeps
	// the acceptor's default.
	MaxMessageSize int64 `mapstructure:"maxMessageSize"`

	// WriteTimeout bounds every write to a socket, so a client that stops
	// reading cannot hold up broadcasts. Defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`

	// Acceptor upgrades HTTP requests. Defaults to CoderAcceptor.
	Acceptor Acceptor `mapstructure:"-"`

	// Adapter carries broadcasts. Defaults to a LocalAdapter.
	Adapter Adapter `mapstructure:"-"`
}

const DefaultSocketPath = "/socket"

// DefaultWriteTimeout is used when SocketOptions.WriteTimeout is zero.
const DefaultWriteTimeout = 10 * time.Second

// DefaultConfig returns the configuration used when the host provides none:
// no middleware and a permissive origin policy.
func DefaultConfig() Config {
	return Config{
		Middleware: []any{},
		SocketOptions: SocketOptions{
			Path:    DefaultSocketPath,
			Origins: []string{"*"},
		},
	}
}

func (o SocketOptions) withDefaults() SocketOptions {
	if o.Path == "" {
		o.Path = DefaultSocketPath
	}
	if len(o.Origins) == 0 {
		o.Origins = []string{"*"}
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Acceptor == nil {
		o.Acceptor = &CoderAcceptor{}
	}
	if o.Adapter == nil {
		o.Adapter = NewLocalAdapter()
	}
	return o
}
