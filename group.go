package pharos

// RouteGroup is a set of routes that share prefixes. Groups are created by
// WebSocket.Group and hold pointers to the routes, so a route belongs to
// every group that was open when it was registered.
type RouteGroup struct {
	routes []*Route
}

// NewRouteGroup creates a group over existing routes.
func NewRouteGroup(routes ...*Route) *RouteGroup {
	return &RouteGroup{routes: append([]*Route{}, routes...)}
}

// Prefix pushes a prefix onto every route in the group. Repeated calls
// compose.
//
//	ws.Group(func() {
//	    ws.On("message", handler)
//	}).Prefix("chat:").Prefix("v1:")
func (g *RouteGroup) Prefix(prefix string) *RouteGroup {
	for _, route := range g.routes {
		route.Prefix(prefix)
	}
	return g
}

// Routes returns the routes in the group, in registration order.
func (g *RouteGroup) Routes() []*Route {
	return append([]*Route{}, g.routes...)
}

func (g *RouteGroup) add(route *Route) {
	g.routes = append(g.routes, route)
}
