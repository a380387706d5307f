package scrape

import (
	"net/url"
	"path"
	"strings"
)

// PathMatcher tests URLs against glob-style path patterns.
//
// Patterns containing a slash are matched against the whole URL path, and
// a trailing "/*" also matches deeper paths ("/ir/*" matches "/ir/2024/q4").
// Patterns without a slash ("*.pdf") are matched against the last path
// segment only. Matching is case-insensitive.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns.
func NewPathMatcher(patterns ...string) *PathMatcher {
	lower := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lower = append(lower, strings.ToLower(p))
		}
	}
	return &PathMatcher{patterns: lower}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// Match reports whether rawURL matches any pattern. Unparseable URLs never match.
func (m *PathMatcher) Match(rawURL string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

// Filter returns the URLs that match.
func (m *PathMatcher) Filter(urls []string) []string {
	var out []string
	for _, u := range urls {
		if m.Match(u) {
			out = append(out, u)
		}
	}
	return out
}

func matchSegmented(pattern, urlPath string) bool {
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(urlPath))
		return ok
	}

	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
