package setfn

import "github.com/RobertWHurst/pharos"

// Middleware creates connection middleware that sets a value generated by
// valueFn on the connection's request context. valueFn is called once per
// connection, so every connection gets its own value.
//
// Example:
//
//	config.Middleware = append(config.Middleware, setfn.Middleware("connectedAt", time.Now))
//
// See also: set.Middleware for constant values.
func Middleware[V any](key string, valueFn func() V) pharos.HandlerFunc {
	return func(ctx *pharos.Context) error {
		ctx.Set(key, valueFn())
		return nil
	}
}
