// Package urlutil provides URL helpers that preserve the original encoding of
// embed and manifest URLs.
package urlutil

import (
	"net/url"
	"strings"
)

// ResolveURL resolves a possibly relative reference against a base URL.
// String manipulation is used instead of url.ResolveReference because CDNs
// sign paths containing characters that the standard resolver re-encodes.
func ResolveURL(ref string, baseURL string) string {
	ref = strings.TrimSpace(ref)
	if IsAbsolute(ref) || strings.HasPrefix(ref, "data:") {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		scheme := "https"
		if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		return scheme + ":" + ref
	}
	if strings.HasPrefix(ref, "/") {
		origin := Origin(baseURL)
		if origin == "" {
			return ref
		}
		return origin + ref
	}

	dir := BaseDirectory(baseURL)
	ref = strings.TrimPrefix(ref, "./")
	for strings.HasPrefix(ref, "../") {
		ref = ref[3:]
		trimmed := strings.TrimSuffix(dir, "/")
		// never climb above scheme://host/
		if i := strings.LastIndex(trimmed, "/"); i > len(Origin(baseURL)) {
			dir = trimmed[:i+1]
		}
	}
	return dir + ref
}

// IsAbsolute reports whether s is an http(s) URL.
func IsAbsolute(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// BaseDirectory returns the URL up to and including its last path slash,
// without the query string.
func BaseDirectory(urlStr string) string {
	if i := strings.IndexAny(urlStr, "?#"); i > 0 {
		urlStr = urlStr[:i]
	}
	origin := Origin(urlStr)
	if origin != "" && len(urlStr) <= len(origin) {
		return origin + "/"
	}
	if i := strings.LastIndex(urlStr, "/"); i > 0 {
		return urlStr[:i+1]
	}
	return urlStr
}

// Origin extracts scheme://host from a URL, or "" when it has neither.
func Origin(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// RawQuery returns the query string of a URL without the leading "?".
func RawQuery(urlStr string) string {
	if i := strings.Index(urlStr, "?"); i >= 0 {
		q := urlStr[i+1:]
		if j := strings.Index(q, "#"); j >= 0 {
			q = q[:j]
		}
		return q
	}
	return ""
}

// HasQuery reports whether the URL carries a non-empty query string.
func HasQuery(urlStr string) bool {
	return RawQuery(urlStr) != ""
}

// InheritQuery appends the query of parent to child when child has none.
// Signed CDN tokens on a master playlist usually also authorize its variants.
func InheritQuery(child, parent string) string {
	if strings.Contains(child, "?") {
		return child
	}
	q := RawQuery(parent)
	if q == "" {
		return child
	}
	return child + "?" + q
}

// Host returns the lowercased host of a URL.
func Host(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
