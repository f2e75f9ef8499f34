package fetch

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// PushRegistry holds an ordered set of push-observer callbacks and routes
// HTTP/2 server pushes into CacheStore, per §4.6 (C6).
type PushRegistry struct {
	mu                 sync.Mutex
	observers          []func(string)
	cacheStore         *CacheStore
	collector          Collector
	pushPromiseTimeout time.Duration
}

// NewPushRegistry constructs a PushRegistry that stores accepted pushes
// into store.
func NewPushRegistry(store *CacheStore) *PushRegistry {
	return &PushRegistry{cacheStore: store, collector: NoOpCollector{}}
}

func (r *PushRegistry) SetCollector(c Collector) {
	if c != nil {
		r.collector = c
	}
}

// SetPushPromiseTimeout bounds how long ingest waits to drain a pushed
// stream's body before discarding it, per §4.8's h2.pushPromiseTimeout
// option. Zero (the default) means no timeout.
func (r *PushRegistry) SetPushPromiseTimeout(d time.Duration) {
	r.pushPromiseTimeout = d
}

// OnPush registers fn as a push observer.
func (r *PushRegistry) OnPush(fn func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// OffPush deregisters fn. It is a no-op if fn was never registered. Go func
// values aren't comparable, so observers are matched by the code pointer
// that %p prints for a func value: OffPush removes the earliest registered
// observer whose code pointer equals fn's. Closures created from the same
// function literal share that pointer and are not told apart.
func (r *PushRegistry) OffPush(fn func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := fmt.Sprintf("%p", fn)
	for i, observer := range r.observers {
		if fmt.Sprintf("%p", observer) == target {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// ingest implements the Transport notification contract described in
// §4.6: drain the pushed body into a BodyBuffer, consult FreshnessPolicy
// with a synthetic GET for pushedUrl, store if storable, then notify
// observers in registration order. One observer panicking or (if it
// returned an error) erroring must not prevent later observers from
// firing; we recover a panic per observer to honor that.
func (r *PushRegistry) ingest(push Push) {
	buf, err := r.drainPushBody(push)
	if err != nil {
		GetLogger().Warn("failed to drain pushed body", "url", push.URL, "error", err)
		return
	}
	if buf == nil {
		GetLogger().Debug("discarding pushed resource after timeout", "url", push.URL)
		return
	}

	syntheticReq := &Request{Method: http.MethodGet, URL: push.URL, Header: http.Header{}}
	stored := false
	if storable(push.Head.Header, push.Head.StatusCode) {
		key, err := computeFingerprint(syntheticReq, push.Head.Header.Values("Vary"))
		if err != nil {
			GetLogger().Warn("failed to fingerprint pushed resource", "url", push.URL, "error", err)
		} else {
			now := time.Now()
			date, _ := parseDate(push.Head.Header)
			entry := &CacheEntry{
				StatusCode:         push.Head.StatusCode,
				StatusText:         push.Head.StatusText,
				HTTPVersion:        push.Head.HTTPVersion,
				Header:             push.Head.Header,
				Body:               buf,
				StoreTime:          now,
				Date:               date,
				ApparentAgeSeconds: apparentAgeAtStore(push.Head.Header, now),
				CacheControl:       parseCacheControl(push.Head.Header),
				Vary:               push.Head.Header.Values("Vary"),
				RetainedBytes:      int64(buf.Len()),
			}
			stored = r.cacheStore.Store(key, entry)
		}
	}
	r.collector.PushReceived(originFromURL(push.URL), stored)

	r.mu.Lock()
	observers := make([]func(string), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, observer := range observers {
		r.notifyOne(observer, push.URL)
	}
}

// drainPushBody drains push.Body into a BodyBuffer, bounded by
// pushPromiseTimeout when one is configured. A nil, nil return means the
// timeout elapsed first; the body is closed and the push is discarded.
func (r *PushRegistry) drainPushBody(push Push) (*BodyBuffer, error) {
	if r.pushPromiseTimeout <= 0 {
		return drainToBodyBuffer(push.Body, push.Head.Header.Get("Content-Type"))
	}

	type result struct {
		buf *BodyBuffer
		err error
	}
	done := make(chan result, 1)
	go func() {
		buf, err := drainToBodyBuffer(push.Body, push.Head.Header.Get("Content-Type"))
		done <- result{buf, err}
	}()

	select {
	case res := <-done:
		return res.buf, res.err
	case <-time.After(r.pushPromiseTimeout):
		push.Body.Close()
		return nil, nil
	}
}

func (r *PushRegistry) notifyOne(observer func(string), url string) {
	defer func() {
		if p := recover(); p != nil {
			GetLogger().Warn("push observer panicked", "url", url, "panic", p)
		}
	}()
	observer(url)
}

func originFromURL(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '/' && i+1 < len(rawURL) && rawURL[i+1] == '/' {
			rest := rawURL[i+2:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == '/' {
					return rawURL[:i+2+j]
				}
			}
			return rawURL
		}
	}
	return rawURL
}
