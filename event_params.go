package pharos

import (
	"fmt"
	"strings"
)

// EventParams maps a route's parameter names to the positional arguments of
// the event being handled. Names without a matching argument are present
// with a nil value.
type EventParams map[string]any

// Get returns the value of a parameter by key. The lookup is
// case-insensitive, with an exact match preferred.
func (p EventParams) Get(key string) any {
	if v, ok := p[key]; ok {
		return v
	}
	for k, v := range p {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// String returns the parameter formatted as a string, or "" when it is
// missing or nil.
func (p EventParams) String(key string) string {
	v := p.Get(key)
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}
