package ginlistener_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobertWHurst/pharos"
	ginlistener "github.com/RobertWHurst/pharos/gin-listener"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestListenerSurvivesReboot(t *testing.T) {
	listener := ginlistener.New(gin.New())
	container := pharos.ContainerFunc(func(_ context.Context, name string) (any, error) {
		if name == "server" {
			return listener, nil
		}
		return nil, nil
	})
	ws := pharos.New(&pharos.Application{Container: container}, pharos.DefaultConfig())
	ws.On(pharos.ConnectionPattern, func(ctx *pharos.Context) error {
		return ctx.Emit("welcome")
	})

	server := httptest.NewServer(listener.Engine())
	defer server.Close()

	require.NoError(t, ws.Boot(context.Background()))
	require.NoError(t, ws.Shutdown(context.Background()))

	res, err := http.Get(server.URL + pharos.DefaultSocketPath)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	require.NoError(t, ws.Boot(context.Background()))
	defer func() { _ = ws.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http")+pharos.DefaultSocketPath, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"welcome"`)
}

func TestListenerNonUpgradeRequest(t *testing.T) {
	engine := gin.New()
	listener := ginlistener.New(engine)
	listener.Handle("/socket", pharos.NewSocketServer())

	res := httptest.NewRecorder()
	engine.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/socket", nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}
