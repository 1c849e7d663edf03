package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/RobertWHurst/pharos"
	"github.com/RobertWHurst/pharos/config"
	ginlistener "github.com/RobertWHurst/pharos/gin-listener"
	"github.com/RobertWHurst/pharos/logger"
	"github.com/RobertWHurst/pharos/middleware/connlog"
	"github.com/RobertWHurst/pharos/middleware/setfn"
	natsadapter "github.com/RobertWHurst/pharos/nats-adapter"
)

// services is a minimal container for the example.
type services struct {
	mu     sync.RWMutex
	values map[string]any
}

func (s *services) Resolve(_ context.Context, name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name], nil
}

func (s *services) register(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating logger:", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	container := &services{values: map[string]any{}}
	container.register("server", ginlistener.New(engine))
	container.register("logger", log)

	wsConfig := cfg.WebSocketConfig()
	wsConfig.Middleware = append(wsConfig.Middleware,
		connlog.Middleware(nil),
		setfn.Middleware("connectedAt", time.Now),
	)

	if cfg.WebSocket.Adapter.NATSURL != "" {
		conn, err := natsadapter.Connect(cfg.WebSocket.Adapter.NATSURL, "pharos-example", log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer conn.Close()
		wsConfig.SocketOptions.Adapter = natsadapter.New(conn, cfg.WebSocket.Adapter.Subject).WithLogger(log)
	}

	ws := pharos.New(&pharos.Application{
		Container: container,
		Modules: pharos.ModuleRegistry{
			"chat": newChatController,
		},
	}, wsConfig)
	container.register("websocket", ws)
	registerRoutes(ws)

	server := &http.Server{Addr: cfg.Server.Addr(), Handler: engine}

	if err := ws.Boot(context.Background()); err != nil {
		log.Error("failed to boot websocket server", zap.Error(err))
		os.Exit(1)
	}

	go func() {
		log.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			os.Exit(1)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()

	if err := ws.Shutdown(ctx); err != nil {
		log.Warn("websocket shutdown incomplete", zap.Error(err))
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("server shutdown incomplete", zap.Error(err))
	}
}

func registerRoutes(ws *pharos.WebSocket) {
	ws.On(pharos.ConnectionPattern, func(ctx *pharos.Context) error {
		ctx.Logger().Info("socket connected", zap.String("socket_id", ctx.Socket.ID()))
		return ctx.Emit("welcome", ctx.Socket.ID())
	})

	ws.Group(func() {
		ws.On("message", "chat.send", "room", "body")
		ws.On("history", "chat.history", "room")

		ws.Group(func() {
			ws.On("start", startTime)
			ws.On("stop", stopTime)
		}).Prefix("time:")
	}).Prefix("v1:")
}

type chatController struct {
	mu      sync.Mutex
	history map[string][]string
}

// chatState outlives the per call controller instances.
var chatState = &chatController{history: map[string][]string{}}

func newChatController(_ context.Context, _ pharos.Container) (pharos.Controller, error) {
	return pharos.Methods{
		"send":    chatState.send,
		"history": chatState.sendHistory,
	}, nil
}

func (c *chatController) send(_ pharos.Container, ctx *pharos.Context) error {
	room := ctx.Params.String("room")
	body := ctx.Params.String("body")
	if room == "" || body == "" {
		return ctx.Emit("chat:error", "room and body are required")
	}

	c.mu.Lock()
	c.history[room] = append(c.history[room], body)
	c.mu.Unlock()

	return ctx.Broadcast("chat:message", room, body, ctx.Socket.ID())
}

func (c *chatController) sendHistory(_ pharos.Container, ctx *pharos.Context) error {
	room := ctx.Params.String("room")

	c.mu.Lock()
	history := append([]string{}, c.history[room]...)
	c.mu.Unlock()

	return ctx.Emit("chat:history", room, history)
}

type timeState struct {
	stop context.CancelFunc
}

func startTime(ctx *pharos.Context) error {
	if state, _ := ctx.Get("timeState").(*timeState); state != nil {
		return nil
	}

	tickCtx, cancel := context.WithCancel(ctx.Context())
	ctx.Set("timeState", &timeState{stop: cancel})

	socket := ctx.Socket
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case now := <-ticker.C:
				if err := socket.Emit("time", now.Unix()); err != nil {
					return
				}
			}
		}
	}()
	return nil
}

func stopTime(ctx *pharos.Context) error {
	state, _ := ctx.Get("timeState").(*timeState)
	if state == nil {
		return nil
	}
	state.stop()
	ctx.Set("timeState", nil)
	return nil
}
