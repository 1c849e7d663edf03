// Package config provides configuration management for pharos hosts.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/RobertWHurst/pharos"
	"github.com/RobertWHurst/pharos/logger"
	"github.com/RobertWHurst/pharos/middleware/ratelimit"
)

// Config holds all configuration sections.
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Logging   logger.LoggingConfig `mapstructure:"logging"`
	WebSocket WebSocketConfig      `mapstructure:"websocket"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"` // in seconds
}

// WebSocketConfig holds the websocket engine configuration.
type WebSocketConfig struct {
	// Middleware lists "module.method" references resolved through the
	// application's module loader.
	Middleware    []string            `mapstructure:"middleware"`
	SocketOptions SocketOptionsConfig `mapstructure:"socketOptions"`
	Adapter       AdapterConfig       `mapstructure:"adapter"`
}

// SocketOptionsConfig holds transport options.
type SocketOptionsConfig struct {
	Path           string   `mapstructure:"path"`
	Origins        []string `mapstructure:"origins"`
	MaxMessageSize int64    `mapstructure:"maxMessageSize"`
	WriteTimeout   int      `mapstructure:"writeTimeout"` // in seconds

	// ConnectionsPerSecond enables per address connection rate limiting
	// when positive.
	ConnectionsPerSecond float64 `mapstructure:"connectionsPerSecond"`
	ConnectionBurst      int     `mapstructure:"connectionBurst"`
}

// AdapterConfig selects the broadcast adapter. An empty NATS URL keeps
// broadcasts local to the process.
type AdapterConfig struct {
	NATSURL string `mapstructure:"natsUrl"`
	Subject string `mapstructure:"subject"`
}

// Addr returns the host:port the HTTP server listens on.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (s *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// WebSocketConfig builds the engine configuration. Rate limiting, when
// enabled, runs before the configured middleware.
func (c *Config) WebSocketConfig() pharos.Config {
	config := pharos.DefaultConfig()

	opts := c.WebSocket.SocketOptions
	if opts.ConnectionsPerSecond > 0 {
		config.Middleware = append(config.Middleware, ratelimit.Middleware(ratelimit.Config{
			ConnectionsPerSecond: rate.Limit(opts.ConnectionsPerSecond),
			Burst:                opts.ConnectionBurst,
		}))
	}
	for _, middleware := range c.WebSocket.Middleware {
		config.Middleware = append(config.Middleware, middleware)
	}

	if opts.Path != "" {
		config.SocketOptions.Path = opts.Path
	}
	if len(opts.Origins) > 0 {
		config.SocketOptions.Origins = opts.Origins
	}
	config.SocketOptions.MaxMessageSize = opts.MaxMessageSize
	config.SocketOptions.WriteTimeout = time.Duration(opts.WriteTimeout) * time.Second
	return config
}

// detectDefaultLogFormat returns "json" in production environments and
// "text" otherwise.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("PHAROS_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdownTimeout", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("websocket.middleware", []string{})
	v.SetDefault("websocket.socketOptions.path", pharos.DefaultSocketPath)
	v.SetDefault("websocket.socketOptions.origins", []string{"*"})
	v.SetDefault("websocket.socketOptions.maxMessageSize", 32768)
	v.SetDefault("websocket.socketOptions.writeTimeout", 10)
	v.SetDefault("websocket.socketOptions.connectionsPerSecond", 0)
	v.SetDefault("websocket.socketOptions.connectionBurst", 10)

	// Empty URL means broadcasts stay in process
	v.SetDefault("websocket.adapter.natsUrl", "")
	v.SetDefault("websocket.adapter.subject", "pharos.broadcast")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix PHAROS_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/pharos/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath is Load with an extra directory searched for config.yaml
// first.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PHAROS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys to SNAKE_CASE names
	_ = v.BindEnv("server.shutdownTimeout", "PHAROS_SERVER_SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("logging.outputPath", "PHAROS_LOGGING_OUTPUT_PATH")
	_ = v.BindEnv("websocket.socketOptions.origins", "PHAROS_WEBSOCKET_ORIGINS")
	_ = v.BindEnv("websocket.socketOptions.maxMessageSize", "PHAROS_WEBSOCKET_MAX_MESSAGE_SIZE")
	_ = v.BindEnv("websocket.socketOptions.connectionsPerSecond", "PHAROS_WEBSOCKET_CONNECTIONS_PER_SECOND")
	_ = v.BindEnv("websocket.adapter.natsUrl", "PHAROS_NATS_URL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pharos/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks every section and reports all problems at once.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdownTimeout must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	opts := cfg.WebSocket.SocketOptions
	if !strings.HasPrefix(opts.Path, "/") {
		errs = append(errs, "websocket.socketOptions.path must start with /")
	}
	if _, err := pharos.NewOriginMatcher(opts.Origins); err != nil {
		errs = append(errs, fmt.Sprintf("websocket.socketOptions.origins is invalid: %v", err))
	}
	if opts.MaxMessageSize < 0 {
		errs = append(errs, "websocket.socketOptions.maxMessageSize must not be negative")
	}
	if opts.WriteTimeout < 0 {
		errs = append(errs, "websocket.socketOptions.writeTimeout must not be negative")
	}
	if opts.ConnectionsPerSecond < 0 {
		errs = append(errs, "websocket.socketOptions.connectionsPerSecond must not be negative")
	}
	if opts.ConnectionsPerSecond > 0 && opts.ConnectionBurst <= 0 {
		errs = append(errs, "websocket.socketOptions.connectionBurst must be positive when rate limiting is enabled")
	}
	for _, middleware := range cfg.WebSocket.Middleware {
		if strings.TrimSpace(middleware) == "" {
			errs = append(errs, "websocket.middleware must not contain empty references")
			break
		}
	}
	if cfg.WebSocket.Adapter.NATSURL != "" && cfg.WebSocket.Adapter.Subject == "" {
		errs = append(errs, "websocket.adapter.subject is required when websocket.adapter.natsUrl is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
