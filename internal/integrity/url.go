package integrity

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// NormalizeURL reduces raw to the canonical form the integrity keys are bound to.
//
// Scheme and host are lowercased, default ports dropped, the fragment removed
// and a trailing path slash trimmed (an empty path becomes "/"). The query is
// kept verbatim. Opaque URLs such as "about:blank" normalize to "scheme:opaque".
func NormalizeURL(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", invalidInput(raw, "not valid UTF-8")
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalidInput(raw, "empty url")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &InvalidInputError{Input: raw, Reason: "unparsable url", Err: err}
	}
	if u.Scheme == "" {
		return "", invalidInput(raw, "missing scheme")
	}

	scheme := strings.ToLower(u.Scheme)

	if u.Opaque != "" {
		return scheme + ":" + u.Opaque, nil
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && defaultPorts[scheme] != port {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	path := u.EscapedPath()
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	b.WriteString(scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(host)
	b.WriteString(path)
	if u.RawQuery != "" || u.ForceQuery {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String(), nil
}

// SameHost reports whether a and b share scheme-insensitive host names.
// Unparsable input never matches.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || ua.Hostname() == "" {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil || ub.Hostname() == "" {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}
