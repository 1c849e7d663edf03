package pharos

import (
	"fmt"
	"net/http"

	"github.com/RobertWHurst/pharos/logger"
)

// initializeSocketContext is always the first middleware of the chain. It
// builds the connection's RequestContext from the upgrade request and
// attaches it to the socket. A factory that returns no context leaves the
// socket without one.
func initializeSocketContext(app *Application, log *logger.Logger) SocketMiddleware {
	factory := app.contextFactory()

	return func(socket Socket, next NextFunc) {
		var reqCtx *RequestContext
		err := callWithRecovery(func() error {
			var err error
			reqCtx, err = factory.CreateContext(socket.Request(), newHandshakeResponse(), app.scope())
			return err
		})
		if err != nil {
			err = fmt.Errorf("failed to create socket context: %w", err)
			dispatchResult{stage: stageMiddleware, err: err}.report(log.WithSocketID(socket.ID()))
			next(err)
			return
		}

		socket.SetContext(reqCtx)
		next(nil)
	}
}

// handshakeResponse stands in for the response of the upgrade request,
// which belongs to the transport. Anything written to it is discarded.
type handshakeResponse struct {
	header http.Header
}

var _ http.ResponseWriter = &handshakeResponse{}

func newHandshakeResponse() *handshakeResponse {
	return &handshakeResponse{header: http.Header{}}
}

func (r *handshakeResponse) Header() http.Header {
	return r.header
}

func (r *handshakeResponse) Write(data []byte) (int, error) {
	return len(data), nil
}

func (r *handshakeResponse) WriteHeader(int) {}
