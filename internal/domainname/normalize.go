// Package domainname canonicalizes the domains that licenses are activated on.
package domainname

import "strings"

// Normalize reduces a raw domain or URL to the key activations are compared by:
// scheme, path, query, port and a leading "www." are dropped and the result is
// lower-cased. It never fails; empty input yields "".
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(s, scheme) {
			s = s[len(scheme):]
			break
		}
	}

	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.IndexByte(s, '?'); idx >= 0 {
		s = s[:idx]
	}

	s = stripPort(s)
	s = strings.TrimPrefix(s, "www.")

	return strings.TrimSpace(s)
}

// Equal reports whether two raw domains normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

func stripPort(host string) string {
	idx := strings.LastIndexByte(host, ':')
	if idx < 0 {
		return host
	}
	port := host[idx+1:]
	if port == "" {
		return host[:idx]
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return host
		}
	}
	return host[:idx]
}
