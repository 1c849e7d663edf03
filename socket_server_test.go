package pharos_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobertWHurst/pharos"
	"github.com/RobertWHurst/pharos/logger"
)

type testEvent struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

// setupServer boots an engine with the built-in transport behind an
// httptest server.
func setupServer(t *testing.T, config pharos.Config, register func(ws *pharos.WebSocket)) (*pharos.WebSocket, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	container := newContainer(map[string]any{
		"server": mux,
		"logger": logger.Nop(),
	})
	ws := pharos.New(&pharos.Application{Container: container}, config)
	if register != nil {
		register(ws)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	require.NoError(t, ws.Boot(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Shutdown(ctx)
	})

	return ws, server
}

func socketURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + pharos.DefaultSocketPath
}

func dialWebSocket(t *testing.T, server *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, socketURL(server), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func writeEvent(t *testing.T, conn *websocket.Conn, ctx context.Context, event string, args ...any) {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(testEvent{Event: event, Args: args})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readEvent(t *testing.T, conn *websocket.Conn, ctx context.Context) testEvent {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var event testEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func welcome(ws *pharos.WebSocket) {
	ws.On(pharos.ConnectionPattern, func(ctx *pharos.Context) error {
		return ctx.Emit("welcome", ctx.Socket.ID())
	})
}

func TestSocketServerDispatchesPrefixedEvents(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), func(ws *pharos.WebSocket) {
		ws.Group(func() {
			ws.On("chat:send", func(ctx *pharos.Context) error {
				return ctx.Emit("chat:sent", ctx.Param("room"), ctx.Param("body"))
			}, "room", "body")
		}).Prefix("v1:")
	})

	conn, ctx := dialWebSocket(t, server)
	writeEvent(t, conn, ctx, "v1:chat:send", "lobby")

	event := readEvent(t, conn, ctx)
	assert.Equal(t, "chat:sent", event.Event)
	assert.Equal(t, []any{"lobby", nil}, event.Args)
}

func TestSocketServerDispatchesSpacedEventNames(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), func(ws *pharos.WebSocket) {
		ws.On("chat message", func(ctx *pharos.Context) error {
			return ctx.Emit("chat message", ctx.Param("body"))
		}, "body")
	})

	conn, ctx := dialWebSocket(t, server)
	writeEvent(t, conn, ctx, "chat message", "hello there")

	event := readEvent(t, conn, ctx)
	assert.Equal(t, "chat message", event.Event)
	assert.Equal(t, []any{"hello there"}, event.Args)
}

func TestSocketServerConnectionRoute(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), welcome)

	conn, ctx := dialWebSocket(t, server)
	event := readEvent(t, conn, ctx)

	assert.Equal(t, "welcome", event.Event)
	require.Len(t, event.Args, 1)
	assert.NotEmpty(t, event.Args[0])
}

func TestSocketServerSurvivesHandlerFailures(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), func(ws *pharos.WebSocket) {
		ws.On("explode", func(*pharos.Context) error { panic("boom") })
		ws.On("fail", func(*pharos.Context) error { return errors.New("nope") })
		ws.On("echo", func(ctx *pharos.Context) error {
			return ctx.Emit("echo", ctx.Param("value"))
		}, "value")
	})

	conn, ctx := dialWebSocket(t, server)
	writeEvent(t, conn, ctx, "explode")
	writeEvent(t, conn, ctx, "fail")
	writeEvent(t, conn, ctx, "echo", "still here")

	event := readEvent(t, conn, ctx)
	assert.Equal(t, "echo", event.Event)
	assert.Equal(t, []any{"still here"}, event.Args)
}

func TestSocketServerSkipsInvalidFrames(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), func(ws *pharos.WebSocket) {
		ws.On("echo", func(ctx *pharos.Context) error {
			return ctx.Emit("echo", ctx.Param("value"))
		}, "value")
	})

	conn, ctx := dialWebSocket(t, server)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"args": [1]}`)))
	writeEvent(t, conn, ctx, pharos.DisconnectEvent, "spoofed")
	writeEvent(t, conn, ctx, "echo", 42)

	event := readEvent(t, conn, ctx)
	assert.Equal(t, "echo", event.Event)
	assert.Equal(t, []any{float64(42)}, event.Args)
}

func TestSocketServerMiddlewareRejection(t *testing.T) {
	config := pharos.DefaultConfig()
	config.Middleware = []any{func(*pharos.Context) error {
		return errors.New("not allowed")
	}}
	_, server := setupServer(t, config, welcome)

	conn, ctx := dialWebSocket(t, server)

	event := readEvent(t, conn, ctx)
	assert.Equal(t, pharos.ConnectErrorEvent, event.Event)
	assert.Equal(t, []any{map[string]any{"message": "not allowed"}}, event.Args)

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestSocketServerBroadcast(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), func(ws *pharos.WebSocket) {
		welcome(ws)
		ws.On("shout", func(ctx *pharos.Context) error {
			return ctx.Broadcast("announcement", ctx.Param("text"))
		}, "text")
	})

	first, ctx := dialWebSocket(t, server)
	second, _ := dialWebSocket(t, server)
	assert.Equal(t, "welcome", readEvent(t, first, ctx).Event)
	assert.Equal(t, "welcome", readEvent(t, second, ctx).Event)

	writeEvent(t, first, ctx, "shout", "hello")

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn, ctx)
		assert.Equal(t, "announcement", event.Event)
		assert.Equal(t, []any{"hello"}, event.Args)
	}
}

func TestSocketServerDisconnectEvent(t *testing.T) {
	reasons := make(chan any, 1)
	_, server := setupServer(t, pharos.DefaultConfig(), func(ws *pharos.WebSocket) {
		welcome(ws)
		ws.On(pharos.DisconnectEvent, func(ctx *pharos.Context) error {
			reasons <- ctx.Param("reason")
			return nil
		}, "reason")
	})

	conn, ctx := dialWebSocket(t, server)
	assert.Equal(t, "welcome", readEvent(t, conn, ctx).Event)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	select {
	case reason := <-reasons:
		assert.Equal(t, pharos.ReasonTransportClose, reason)
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect handler was not called")
	}
}

func TestSocketServerServerSideDisconnect(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), func(ws *pharos.WebSocket) {
		ws.On("leave", func(ctx *pharos.Context) error {
			return ctx.Socket.Disconnect()
		})
	})

	conn, ctx := dialWebSocket(t, server)
	writeEvent(t, conn, ctx, "leave")

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestSocketServerShutdownClosesSockets(t *testing.T) {
	ws, server := setupServer(t, pharos.DefaultConfig(), welcome)

	conn, ctx := dialWebSocket(t, server)
	assert.Equal(t, "welcome", readEvent(t, conn, ctx).Event)

	// The close handshake needs the client to be reading.
	done := make(chan error, 1)
	go func() {
		done <- ws.Shutdown(context.Background())
	}()

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	require.NoError(t, <-done)
	assert.Nil(t, ws.Server())
}

func upgradeRequest(t *testing.T, server *httptest.Server, origin string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+pharos.DefaultSocketPath, nil)
	require.NoError(t, err)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestSocketServerRejectsPlainRequests(t *testing.T) {
	_, server := setupServer(t, pharos.DefaultConfig(), nil)

	res, err := http.Get(server.URL + pharos.DefaultSocketPath)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSocketServerRejectsDisallowedOrigins(t *testing.T) {
	config := pharos.DefaultConfig()
	config.SocketOptions.Origins = []string{"https://*.example.com"}
	_, server := setupServer(t, config, nil)

	res := upgradeRequest(t, server, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = upgradeRequest(t, server, "https://app.example.com")
	assert.Equal(t, http.StatusSwitchingProtocols, res.StatusCode)
}

func TestSocketServerRebootOnSameListener(t *testing.T) {
	ws, server := setupServer(t, pharos.DefaultConfig(), welcome)

	require.NoError(t, ws.Shutdown(context.Background()))
	res := upgradeRequest(t, server, "")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	require.NoError(t, ws.Boot(context.Background()))
	conn, ctx := dialWebSocket(t, server)
	assert.Equal(t, "welcome", readEvent(t, conn, ctx).Event)
}

func TestSocketServerRequiresAttach(t *testing.T) {
	server := pharos.NewSocketServer()

	res := httptest.NewRecorder()
	server.ServeHTTP(res, httptest.NewRequest("GET", "/socket", nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.ErrorIs(t, server.Emit("anything"), pharos.ErrTransportClosed)
}

func TestSocketServerAttachOnce(t *testing.T) {
	server := pharos.NewSocketServer()
	mux := http.NewServeMux()

	require.NoError(t, server.Attach(mux, pharos.SocketOptions{}))
	assert.Error(t, server.Attach(mux, pharos.SocketOptions{}))

	require.NoError(t, server.Close(context.Background()))
	require.NoError(t, server.Close(context.Background()))
	assert.ErrorIs(t, server.Emit("anything"), pharos.ErrTransportClosed)
}

func TestSocketServerStalledMiddleware(t *testing.T) {
	server := pharos.NewSocketServer()
	mux := http.NewServeMux()
	require.NoError(t, server.Attach(mux, pharos.SocketOptions{}))
	server.Use(func(pharos.Socket, pharos.NextFunc) {})

	httpServer := httptest.NewServer(mux)
	defer httpServer.Close()
	defer func() { _ = server.Close(context.Background()) }()

	conn, ctx := dialWebSocket(t, httpServer)
	event := readEvent(t, conn, ctx)
	assert.Equal(t, pharos.ConnectErrorEvent, event.Event)
	assert.Equal(t, []any{map[string]any{"message": pharos.ErrMiddlewareStalled.Error()}}, event.Args)
}
