package pharos

import (
	"errors"

	"go.uber.org/zap"

	"github.com/RobertWHurst/pharos/logger"
)

type dispatchStage string

const (
	stageAccept     dispatchStage = "accept"
	stageMiddleware dispatchStage = "middleware"
	stageConnection dispatchStage = "connection"
	stageEvent      dispatchStage = "event"
)

// dispatchResult is the outcome of one step of a connection's lifecycle.
// report turns it into log output; nothing is ever propagated to the
// transport except through a middleware's next.
type dispatchResult struct {
	stage   dispatchStage
	pattern string
	err     error
}

func dispatchRoute(stage dispatchStage, route *Route, ctx *Context, args ...any) dispatchResult {
	return dispatchResult{
		stage:   stage,
		pattern: route.Pattern(),
		err:     route.Handle(ctx, args...),
	}
}

func (r dispatchResult) report(log *logger.Logger) {
	if r.err == nil {
		return
	}
	fields := []zap.Field{zap.String("stage", string(r.stage))}
	if r.pattern != "" {
		key := "event"
		if r.stage == stageMiddleware {
			key = "middleware"
		}
		fields = append(fields, zap.String(key, r.pattern))
	}
	log = log.WithError(r.err)

	switch r.stage {
	case stageAccept:
		if errors.Is(r.err, ErrMissingContext) {
			log.Error("socket has no request context, disconnecting", fields...)
			return
		}
		log.Error("failed to accept socket", fields...)
	case stageMiddleware:
		log.Error("websocket middleware failed, rejecting socket", fields...)
	default:
		// Route.Handle already logged the failure with its handler.
		log.Debug("websocket handler error contained", fields...)
	}
}
