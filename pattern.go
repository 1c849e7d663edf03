package pharos

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/grafana/regexp"
)

var eventPatternRegexp = regexp.MustCompile(`^[^\x00-\x1f\x7f]+$`)

// validateEventPattern checks an event name or prefix. Event names may use
// any printable characters, spaces included.
func validateEventPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("event pattern is empty")
	}
	if !eventPatternRegexp.MatchString(pattern) {
		return fmt.Errorf("event pattern %q contains control characters", pattern)
	}
	return nil
}

// OriginMatcher checks the Origin header of upgrade requests against a list
// of patterns. A pattern may contain "*" wildcards and is matched against
// either the full origin ("https://app.example.com") or its host
// ("*.example.com"), case-insensitively.
type OriginMatcher struct {
	allowAll bool
	patterns []*regexp.Regexp
}

// NewOriginMatcher compiles origin patterns. An empty list allows every
// origin, as does a "*" entry.
func NewOriginMatcher(origins []string) (*OriginMatcher, error) {
	m := &OriginMatcher{}
	if len(origins) == 0 {
		m.allowAll = true
		return m, nil
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			m.allowAll = true
			continue
		}
		if origin == "" {
			return nil, fmt.Errorf("origin pattern is empty")
		}
		re, err := compileOriginPattern(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin pattern %q: %w", origin, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func compileOriginPattern(origin string) (*regexp.Regexp, error) {
	parts := strings.Split(origin, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile(`(?i)^` + strings.Join(parts, `[^/]*`) + `$`)
}

// Allow reports whether the request's origin is allowed. Requests without
// an Origin header, or whose origin matches the request host, are always
// allowed.
func (m *OriginMatcher) Allow(req *http.Request) bool {
	if m == nil || m.allowAll {
		return true
	}
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, req.Host) {
		return true
	}
	for _, re := range m.patterns {
		if re.MatchString(origin) || re.MatchString(u.Host) {
			return true
		}
	}
	return false
}
