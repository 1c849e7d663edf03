package set

import "github.com/RobertWHurst/pharos"

// Middleware creates connection middleware that sets a value on the
// connection's request context. The value is set once when the middleware is
// created and shared by every connection.
//
// Example:
//
//	config.Middleware = append(config.Middleware, set.Middleware("apiVersion", "v1"))
//
//	ws.On("info", func(ctx *pharos.Context) error {
//	    return ctx.Emit("info", ctx.MustGet("apiVersion").(string))
//	})
//
// See also: setfn.Middleware for values computed per connection.
func Middleware[V any](key string, value V) pharos.HandlerFunc {
	return func(ctx *pharos.Context) error {
		ctx.Set(key, value)
		return nil
	}
}
