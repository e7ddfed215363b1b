package crawl

import (
	"net/url"
	"path"
	"strings"
)

// DefaultIncludePatterns select the pages likely to name staff and contacts.
var DefaultIncludePatterns = []string{
	"*about*",
	"*team*",
	"*staff*",
	"*contact*",
	"*doctor*",
	"*veterinarian*",
	"*our-*",
}

// defaultExcludePatterns drop non-HTML assets even when the name matches.
var defaultExcludePatterns = []string{
	"*.pdf",
	"*.jpg",
	"*.jpeg",
	"*.png",
	"*.gif",
	"*.zip",
	"/wp-content/*",
}

// PathMatcher filters URLs with glob-style path patterns. A pattern without
// a slash is matched against every path segment, so "*team*" matches
// "/about/our-team". Patterns with a slash match the whole path, and a
// trailing "/*" also matches deeper paths.
type PathMatcher struct {
	include []string
	exclude []string
}

// NewPathMatcher creates a PathMatcher. Empty include patterns fall back to
// DefaultIncludePatterns.
func NewPathMatcher(include []string) *PathMatcher {
	if len(include) == 0 {
		include = DefaultIncludePatterns
	}
	return &PathMatcher{
		include: lowerAll(include),
		exclude: lowerAll(defaultExcludePatterns),
	}
}

// Patterns returns the configured include patterns.
func (m *PathMatcher) Patterns() []string {
	return m.include
}

// Allowed reports whether a URL's path matches an include pattern and no
// exclude pattern.
func (m *PathMatcher) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return m.matchAny(m.include, p) && !m.matchAny(m.exclude, p)
}

func (m *PathMatcher) matchAny(patterns []string, urlPath string) bool {
	for _, pattern := range patterns {
		if strings.Contains(pattern, "/") {
			if matchSegmented(pattern, urlPath) {
				return true
			}
			continue
		}
		for _, seg := range strings.Split(urlPath, "/") {
			if seg == "" {
				continue
			}
			if ok, _ := path.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/blog/*"
// matches both "/blog/post" and "/blog/deep/nested/path".
func matchSegmented(pattern, urlPath string) bool {
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

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
