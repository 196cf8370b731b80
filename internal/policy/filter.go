package policy

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/idna"

	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

// URLRule is one compiled URL filter rule
type URLRule struct {
	Pattern string
	Allow   bool
	valid   bool
}

// URLFilter decides which URLs may be loaded.
// Rules are tried in order and the first match decides. When the filter is
// enabled, an unmatched URL is blocked. A rule with a malformed pattern
// matches everything and blocks.
type URLFilter struct {
	enabled bool
	rules   []URLRule
}

// NewURLFilter compiles rules. A disabled filter allows every URL.
func NewURLFilter(enabled bool, rules []settings.FilterRule) *URLFilter {
	f := &URLFilter{enabled: enabled, rules: make([]URLRule, 0, len(rules))}
	for _, r := range rules {
		pattern := asciiPattern(strings.TrimSpace(r.Pattern))
		f.rules = append(f.rules, URLRule{
			Pattern: pattern,
			Allow:   r.Result == settings.FilterAllow,
			valid:   pattern != "" && doublestar.ValidatePattern(pattern),
		})
	}
	return f
}

// NewURLFilterFromSettings compiles the settings filter. The start URL is
// always reachable, so an exact allow rule for it is placed first.
func NewURLFilterFromSettings(s settings.URLFilterSettings, startURL string) *URLFilter {
	rules := make([]settings.FilterRule, 0, len(s.Rules)+1)
	if target, ok := filterTarget(startURL); ok && s.Enabled {
		rules = append(rules, settings.FilterRule{
			Pattern: escapeGlob(target),
			Result:  settings.FilterAllow,
		})
	}
	rules = append(rules, s.Rules...)
	return NewURLFilter(s.Enabled, rules)
}

// Enabled reports whether the filter restricts anything
func (f *URLFilter) Enabled() bool {
	return f != nil && f.enabled
}

// Allows reports whether rawURL may be loaded
func (f *URLFilter) Allows(rawURL string) bool {
	if f == nil {
		return false
	}
	if !f.enabled {
		return true
	}
	if rawURL == "about:blank" {
		return true
	}

	target, ok := filterTarget(rawURL)
	if !ok {
		return false
	}

	for _, r := range f.rules {
		if !r.valid {
			return false
		}
		if matchURL(r.Pattern, target) {
			return r.Allow
		}
	}
	return false
}

// filterTarget reduces a URL to "host/path" for matching. Internationalized
// hosts are matched in their ASCII form.
func filterTarget(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	host, err := idna.Punycode.ToASCII(strings.ToLower(u.Hostname()))
	if err != nil {
		return "", false
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return host + path, true
}

// asciiPattern lowercases the host part of a pattern and converts it to its
// ASCII form. Paths are case sensitive and kept as written.
func asciiPattern(pattern string) string {
	host, rest, found := strings.Cut(pattern, "/")
	host = strings.ToLower(host)
	if ascii, err := idna.Punycode.ToASCII(host); err == nil {
		host = ascii
	}
	if found {
		return host + "/" + rest
	}
	return host
}

// matchURL matches host-only patterns against the host and full patterns
// against host+path.
func matchURL(pattern, target string) bool {
	if !strings.Contains(pattern, "/") {
		host, _, _ := strings.Cut(target, "/")
		ok, _ := doublestar.Match(pattern, host)
		return ok
	}
	ok, _ := doublestar.Match(pattern, target)
	return ok
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`)
	return r.Replace(s)
}

// PathFilter is a file system allow-list of doublestar patterns.
// An empty list allows every absolute path.
type PathFilter struct {
	patterns []string
}

// NewPathFilter copies patterns into a filter
func NewPathFilter(patterns []string) *PathFilter {
	p := &PathFilter{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		p.patterns = append(p.patterns, filepath.ToSlash(pattern))
	}
	return p
}

// Restricted reports whether the filter has any patterns
func (p *PathFilter) Restricted() bool {
	return p != nil && len(p.patterns) > 0
}

// Allows reports whether path is permitted. Relative paths are rejected.
func (p *PathFilter) Allows(path string) bool {
	if p == nil || path == "" {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if !strings.HasPrefix(clean, "/") && filepath.VolumeName(path) == "" {
		return false
	}
	if len(p.patterns) == 0 {
		return true
	}
	for _, pattern := range p.patterns {
		if ok, err := doublestar.Match(pattern, clean); err == nil && ok {
			return true
		}
	}
	return false
}
