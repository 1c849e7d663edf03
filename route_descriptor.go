package pharos

// RouteDescriptor describes a registered route. Descriptors marshal to JSON
// and can be served for client discovery.
type RouteDescriptor struct {
	Pattern    string   `json:"pattern"`
	Params     []string `json:"params"`
	Handler    string   `json:"handler"`
	Connection bool     `json:"connection,omitempty"`
}
