// Package connlog logs every websocket connection that reaches it in the
// middleware chain.
package connlog

import (
	"go.uber.org/zap"

	"github.com/RobertWHurst/pharos"
	"github.com/RobertWHurst/pharos/logger"
)

// Middleware logs each connection at info level. When log is nil the
// engine's logger is used.
func Middleware(log *logger.Logger) pharos.HandlerFunc {
	return func(ctx *pharos.Context) error {
		l := log
		if l == nil {
			l = ctx.Logger()
		}

		fields := []zap.Field{zap.String("socket_id", ctx.Socket.ID())}
		if req := ctx.Socket.Request(); req != nil {
			fields = append(fields,
				zap.String("remote_addr", req.RemoteAddr),
				zap.String("origin", req.Header.Get("Origin")),
				zap.String("user_agent", req.UserAgent()),
			)
		}
		if ctx.RequestContext != nil {
			fields = append(fields, zap.String("request_id", ctx.RequestContext.ID))
		}
		l.Info("websocket connection accepted", fields...)
		return nil
	}
}
