package fetch

import (
	"net/http"
	"time"
)

// Decision is the FreshnessPolicy's verdict for a request, per §4.4 (C4).
type Decision int

const (
	// Bypass means don't consult the cache, don't store.
	Bypass Decision = iota
	// HitFresh means serve the cached entry as-is.
	HitFresh
	// HitStaleRevalidate means serve the stale entry only if revalidation
	// succeeds; otherwise serve the fresh network response.
	HitStaleRevalidate
	// MissStore means go to the network, then store if the response permits.
	MissStore
	// MissNoStore means go to the network, never store the response.
	MissNoStore
)

// storableStatusCodes are cacheable by default even without explicit
// freshness information, per §4.4 rule 6.
var storableStatusCodes = map[int]bool{
	200: true, 203: true, 204: true, 206: true,
	300: true, 301: true, 404: true, 405: true,
	410: true, 414: true, 501: true,
}

// decide implements §4.4's rules 1-5: whether to consult/serve from the
// cache before a network attempt is made. Rule 6 (storability) is applied
// separately by storable, once a response is in hand.
func decide(req *Request, entry *CacheEntry, ageSeconds int64, now time.Time) Decision {
	method := req.Method
	if method != http.MethodGet && method != http.MethodHead {
		return MissNoStore
	}

	if req.CacheMode == CacheNoStore {
		return MissNoStore
	}
	reqCC := parseCacheControl(req.Header)
	if reqCC.has(ccNoStore) {
		return MissNoStore
	}

	if entry == nil {
		return MissStore
	}

	lifetime := freshnessLifetime(entry)
	entryCC := entry.CacheControl
	noCache := reqCC.has(ccNoCache) || entryCC.has(ccNoCache)

	if ageSeconds < int64(lifetime.Seconds()) && !noCache {
		return HitFresh
	}
	return HitStaleRevalidate
}

// freshnessLifetime computes the entry's freshness lifetime per rule 4:
// s-maxage, then max-age, then a heuristic of (now - lastModified) * 0.1
// capped at 24h when Last-Modified is present, else 0.
//
// Rule 5: an entry stored with max-age=0 has a zero lifetime, so any
// lookup after the instant of storage falls through to
// HitStaleRevalidate — this falls out of the formula without special
// casing.
func freshnessLifetime(entry *CacheEntry) time.Duration {
	if d, ok := entry.CacheControl.duration(ccSMaxAge); ok {
		return d
	}
	if d, ok := entry.CacheControl.duration(ccMaxAge); ok {
		return d
	}
	if lastModified := entry.Header.Get("Last-Modified"); lastModified != "" {
		if t, err := http.ParseTime(lastModified); err == nil {
			heuristic := time.Since(t) / 10
			if heuristic < 0 {
				heuristic = 0
			}
			const cap = 24 * time.Hour
			if heuristic > cap {
				heuristic = cap
			}
			return heuristic
		}
	}
	return 0
}

// storable implements §4.4 rule 6-7: whether a response may be written into
// CacheStore. Shared and private caches are treated identically — this
// library's cache is always process-local, so Cache-Control: private does
// not prevent storage.
func storable(header http.Header, statusCode int) bool {
	cc := parseCacheControl(header)

	if hasVaryStar(header) {
		return false
	}
	if cc.has(ccNoStore) {
		return false
	}

	if storableStatusCodes[statusCode] {
		return true
	}
	if cc.has(ccMaxAge) || cc.has(ccSMaxAge) {
		return true
	}
	return header.Get("Expires") != ""
}

func hasVaryStar(header http.Header) bool {
	for _, v := range header.Values("Vary") {
		if v == "*" {
			return true
		}
	}
	return false
}
