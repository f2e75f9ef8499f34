package fetch

import (
	"context"
	"io"
	"net/http"
	"time"
)

// RequestEngine orchestrates one fetch: fingerprint, cache lookup,
// transport dispatch, cache store, and Response construction, per §4.7
// (C7).
type RequestEngine struct {
	cacheStore   *CacheStore
	sessionPool  *SessionPool
	pushRegistry *PushRegistry

	userAgent          string
	overwriteUserAgent bool
}

// NewRequestEngine constructs a RequestEngine bound to the given
// components.
func NewRequestEngine(cacheStore *CacheStore, sessionPool *SessionPool, pushRegistry *PushRegistry) *RequestEngine {
	return &RequestEngine{cacheStore: cacheStore, sessionPool: sessionPool, pushRegistry: pushRegistry}
}

// SetUserAgent configures the default User-Agent applied to every request
// that doesn't already carry one, per §4.8's userAgent/overwriteUserAgent
// options. overwrite forces userAgent even when the caller set one.
func (e *RequestEngine) SetUserAgent(userAgent string, overwrite bool) {
	e.userAgent = userAgent
	e.overwriteUserAgent = overwrite
}

func (e *RequestEngine) applyUserAgent(req *Request) {
	if e.userAgent == "" {
		return
	}
	if e.overwriteUserAgent || req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
}

// Fetch implements §4.7's 8-step algorithm.
func (e *RequestEngine) Fetch(ctx context.Context, req *Request) (*Response, error) {
	e.applyUserAgent(req)

	key, err := computeFingerprint(req, nil)
	if err != nil {
		return nil, err
	}

	// Rules 1-2 are settled before the cache is consulted, so a request that
	// may not use the cache never touches it.
	now := time.Now()
	decision := decide(req, nil, 0, now)
	var entry *CacheEntry
	var ageSeconds int64
	if decision == MissStore {
		if cached, age, hit := e.cacheStore.Lookup(key); hit {
			entry, ageSeconds = cached, age
			decision = decide(req, entry, ageSeconds, now)
		}
	}

	switch decision {
	case HitFresh:
		header := entry.Header.Clone()
		header.Set("Age", formatAge(ageSeconds))
		return newBufferedResponse(entry.StatusCode, entry.StatusText, entry.HTTPVersion, header, false, req.URL, true, entry.Body), nil

	case HitStaleRevalidate:
		return e.revalidate(ctx, req, key, entry)

	case MissStore:
		return e.fetchAndMaybeStore(ctx, req, key, true)

	default: // MissNoStore, Bypass
		return e.fetchAndMaybeStore(ctx, req, key, false)
	}
}

// revalidate attaches conditional headers from the stale entry, dispatches,
// and either refreshes the stored entry on a 304 or falls through to a
// fresh network response, per step 6.
func (e *RequestEngine) revalidate(ctx context.Context, req *Request, key string, entry *CacheEntry) (*Response, error) {
	conditional := withValidators(req, entry)

	head, body, finalURL, redirected, err := e.sessionPool.Dispatch(ctx, conditional)
	if err != nil {
		return nil, err
	}

	if head.StatusCode == http.StatusNotModified {
		if body != nil {
			body.Close()
		}
		refreshed := refreshEntry(entry, head.Header)
		e.cacheStore.Store(key, refreshed)
		responseHeader := refreshed.Header.Clone()
		responseHeader.Set("Age", formatAge(refreshed.ApparentAgeSeconds))
		return newBufferedResponse(refreshed.StatusCode, refreshed.StatusText, refreshed.HTTPVersion, responseHeader, redirected, finalURL, true, refreshed.Body), nil
	}

	return e.finishLiveResponse(head, body, finalURL, redirected, key, req)
}

// fetchAndMaybeStore dispatches req fresh and, if mayStore and the response
// is storable, buffers and stores it; otherwise streams it through live,
// per steps 6-7.
func (e *RequestEngine) fetchAndMaybeStore(ctx context.Context, req *Request, key string, mayStore bool) (*Response, error) {
	head, body, finalURL, redirected, err := e.sessionPool.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if !mayStore {
		return newLiveResponse(head.StatusCode, head.StatusText, head.HTTPVersion, head.Header, redirected, finalURL, body), nil
	}
	return e.finishLiveResponse(head, body, finalURL, redirected, key, req)
}

// finishLiveResponse buffers the body and stores it if the response is
// storable; otherwise it returns a Response streaming the still-open body.
func (e *RequestEngine) finishLiveResponse(head ResponseHead, body io.ReadCloser, finalURL string, redirected bool, key string, req *Request) (*Response, error) {
	if !storable(head.Header, head.StatusCode) {
		return newLiveResponse(head.StatusCode, head.StatusText, head.HTTPVersion, head.Header, redirected, finalURL, body), nil
	}

	buf, err := drainToBodyBuffer(body, head.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	date, _ := parseDate(head.Header)
	entry := &CacheEntry{
		StatusCode:         head.StatusCode,
		StatusText:         head.StatusText,
		HTTPVersion:        head.HTTPVersion,
		Header:             head.Header,
		Body:               buf,
		StoreTime:          now,
		Date:               date,
		ApparentAgeSeconds: apparentAgeAtStore(head.Header, now),
		CacheControl:       parseCacheControl(head.Header),
		Vary:               head.Header.Values("Vary"),
		RetainedBytes:      int64(buf.Len()),
	}

	if len(entry.Vary) > 0 {
		if varyKey, err := computeFingerprint(req, entry.Vary); err == nil {
			key = varyKey
		}
	}
	e.cacheStore.Store(key, entry)

	return newBufferedResponse(head.StatusCode, head.StatusText, head.HTTPVersion, head.Header.Clone(), redirected, finalURL, false, buf), nil
}

// withValidators clones req and attaches If-None-Match / If-Modified-Since
// from entry, unless the caller already set them.
func withValidators(req *Request, entry *CacheEntry) *Request {
	etag := entry.Header.Get("ETag")
	lastModified := entry.Header.Get("Last-Modified")

	if etag == "" && lastModified == "" {
		return req
	}

	header := req.Header.Clone()
	if etag != "" && header.Get("If-None-Match") == "" {
		header.Set("If-None-Match", etag)
	}
	if lastModified != "" && header.Get("If-Modified-Since") == "" {
		header.Set("If-Modified-Since", lastModified)
	}

	clone := *req
	clone.Header = header
	return &clone
}

// refreshEntry merges a 304 response's headers into the stale entry per
// RFC 7234 §4.3.4 (all headers from the 304 except ones that must not be
// updated via revalidation), and recomputes the stored timestamp/apparent
// age. The entry is replaced atomically, never mutated in place.
func refreshEntry(stale *CacheEntry, newHeaders http.Header) *CacheEntry {
	merged := stale.Header.Clone()
	for name, values := range newHeaders {
		if name == "Content-Length" {
			continue
		}
		merged[name] = values
	}

	now := time.Now()
	date, _ := parseDate(merged)
	return &CacheEntry{
		StatusCode:         stale.StatusCode,
		StatusText:         stale.StatusText,
		HTTPVersion:        stale.HTTPVersion,
		Header:             merged,
		Body:               stale.Body,
		StoreTime:          now,
		Date:               date,
		ApparentAgeSeconds: apparentAgeAtStore(merged, now),
		CacheControl:       parseCacheControl(merged),
		Vary:               stale.Vary,
		RetainedBytes:      stale.RetainedBytes,
	}
}
