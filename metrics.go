package fetch

import "time"

// Collector receives instrumentation events from CacheStore, SessionPool and
// PushRegistry. Implementations must be safe for concurrent use. The
// package-level default is NoOpCollector, giving zero overhead to callers
// who don't configure one; github.com/tidecache/fetch/metrics/prometheus
// provides a Prometheus-backed implementation.
type Collector interface {
	CacheHit(key string)
	CacheMiss(key string)
	CacheStore(key string, bytes int64)
	CacheEvict(key string)

	// SessionDispatch records one request dispatched through a Session,
	// the HTTP version that session was opened for ("1.1" or "2"), and how
	// long the round trip to response-head took.
	SessionDispatch(origin string, httpVersion string, duration time.Duration, err error)

	// PushReceived records one HTTP/2 server push ingested by PushRegistry,
	// and whether it was stored into the cache.
	PushReceived(origin string, stored bool)
}

// NoOpCollector implements Collector with no-op operations.
type NoOpCollector struct{}

func (NoOpCollector) CacheHit(string)                                      {}
func (NoOpCollector) CacheMiss(string)                                     {}
func (NoOpCollector) CacheStore(string, int64)                             {}
func (NoOpCollector) CacheEvict(string)                                    {}
func (NoOpCollector) SessionDispatch(string, string, time.Duration, error) {}
func (NoOpCollector) PushReceived(string, bool)                            {}

var _ Collector = NoOpCollector{}
