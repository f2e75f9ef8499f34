package fetch

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// fingerprintSep separates a fingerprint's positional components and its
// optional Vary-header entries; fingerprintAbsent marks an absent header
// within that suffix. Neither sequence can appear in a normalized method, URL or header
// value, so there is no ambiguity in the concatenation.
const (
	fingerprintSep    = "\x00"
	fingerprintAbsent = "\x01"
)

// computeFingerprint implements §4.1 (C1): a stable cache key derived from
// method, normalized URL, and — once a prior response's Vary header is
// known — the request's values for exactly those headers. Equality of two
// fingerprints implies request-level equivalence for cache purposes; no
// hash is taken, the stored key is the full byte string.
func computeFingerprint(req *Request, knownVaryHeaders []string) (string, error) {
	u, err := req.resolvedURL()
	if err != nil {
		return "", newError("fingerprint", KindInvalidArgument, err)
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteString(fingerprintSep)
	b.WriteString(normalizeURL(u))

	if len(knownVaryHeaders) > 0 {
		headers := make([]string, len(knownVaryHeaders))
		copy(headers, knownVaryHeaders)
		for i, h := range headers {
			headers[i] = strings.ToLower(strings.TrimSpace(h))
		}
		sort.Strings(headers)

		for _, h := range headers {
			b.WriteString(fingerprintSep)
			b.WriteString(h)
			b.WriteString("=")
			if values, ok := req.Header[http.CanonicalHeaderKey(h)]; ok {
				b.WriteString(strings.Join(values, ","))
			} else {
				b.WriteString(fingerprintAbsent)
			}
		}
	}

	return b.String(), nil
}

// normalizeURL renders u as scheme+authority+path+query with the scheme and
// host lowercased, the default port for the scheme elided, the path left
// as-is, and the query re-sorted lexicographically by key with values
// preserved in their original order.
func normalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPortFor(scheme) {
		host = host + ":" + port
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(u.EscapedPath())

	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(sortedQuery(u.RawQuery))
	}
	return b.String()
}

func defaultPortFor(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// sortedQuery re-sorts a raw query string's key=value pairs lexicographically
// by key, preserving each pair's original value and order among pairs that
// share a key.
func sortedQuery(raw string) string {
	pairs := strings.Split(raw, "&")
	sort.SliceStable(pairs, func(i, j int) bool {
		return queryKeyOf(pairs[i]) < queryKeyOf(pairs[j])
	})
	return strings.Join(pairs, "&")
}

func queryKeyOf(pair string) string {
	if idx := strings.IndexByte(pair, '='); idx >= 0 {
		return pair[:idx]
	}
	return pair
}
