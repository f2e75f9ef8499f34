package fetch

import (
	"net/http"
	"strings"
	"time"
)

// Cache-Control directive names consumed by FreshnessPolicy and CacheStore.
const (
	ccNoStore              = "no-store"
	ccNoCache              = "no-cache"
	ccPrivate              = "private"
	ccPublic               = "public"
	ccMaxAge               = "max-age"
	ccSMaxAge              = "s-maxage"
	ccMustRevalidate       = "must-revalidate"
	ccStaleWhileRevalidate = "stale-while-revalidate"
	ccOnlyIfCached         = "only-if-cached"
)

// cacheControl is a map of Cache-Control directive names to their values, as
// described in §9's Design Notes ("a small stand-alone grammar; do not
// depend on a particular external library").
type cacheControl map[string]string

// parseCacheControl parses the Cache-Control header into a directive set.
// Duplicate directives keep the first occurrence; conflicting directives are
// resolved by keeping whichever reading is more restrictive, logging the
// conflict rather than failing.
func parseCacheControl(headers http.Header) cacheControl {
	cc := cacheControl{}
	seen := map[string]bool{}

	for _, part := range strings.Split(headers.Get("Cache-Control"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var directive, value string
		if idx := strings.IndexByte(part, '='); idx >= 0 {
			directive = strings.TrimSpace(part[:idx])
			value = strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
		} else {
			directive = part
		}
		directive = strings.ToLower(directive)

		if seen[directive] {
			GetLogger().Debug("duplicate Cache-Control directive, keeping first value", "directive", directive)
			continue
		}
		seen[directive] = true
		cc[directive] = value
	}

	resolveConflicts(cc)
	return cc
}

// resolveConflicts applies the more restrictive directive when two
// directives in the same header conflict, logging the resolution.
func resolveConflicts(cc cacheControl) {
	if _, hasPrivate := cc[ccPrivate]; hasPrivate {
		if _, hasPublic := cc[ccPublic]; hasPublic {
			GetLogger().Debug("conflicting Cache-Control directives: public + private, keeping private")
			delete(cc, ccPublic)
		}
	}
	for _, key := range []string{ccMaxAge, ccSMaxAge} {
		if value, ok := cc[key]; ok && value != "" {
			if _, err := time.ParseDuration(value + "s"); err != nil || strings.Contains(value, ".") {
				GetLogger().Debug("invalid Cache-Control duration, ignoring directive", "directive", key, "value", value)
				delete(cc, key)
			}
		}
	}
}

// duration parses a directive's value as whole seconds, returning ok=false
// if the directive is absent or not a valid non-negative integer.
func (cc cacheControl) duration(name string) (time.Duration, bool) {
	value, ok := cc[name]
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(value + "s")
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func (cc cacheControl) has(name string) bool {
	_, ok := cc[name]
	return ok
}
