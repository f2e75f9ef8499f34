package fetch

import (
	"fmt"
	"time"
)

const defaultMaxCacheSize int64 = 10 * 1024 * 1024 // 10 MiB, per §4.8

// ContextOption configures a Context. Use the With* functions to build
// ContextOptions, mirroring the teacher's TransportOption pattern.
type ContextOption func(*contextConfig) error

// contextConfig holds the resolved value of every option in §4.8's table
// before a Context's components are constructed from it.
type contextConfig struct {
	maxCacheSize       int64
	httpsProtocols     []string
	userAgent          string
	overwriteUserAgent bool
	pushPromiseTimeout time.Duration
	collector          Collector
	resilience         *ResilienceConfig
}

func defaultContextConfig() contextConfig {
	return contextConfig{
		maxCacheSize:   defaultMaxCacheSize,
		httpsProtocols: []string{"http2", "http1"},
		collector:      NoOpCollector{},
	}
}

// WithMaxCacheSize sets the CacheStore byte budget. Default 10 MiB.
func WithMaxCacheSize(bytes int64) ContextOption {
	return func(c *contextConfig) error {
		if bytes <= 0 {
			return fmt.Errorf("maxCacheSize must be positive, got %d", bytes)
		}
		c.maxCacheSize = bytes
		return nil
	}
}

// WithHTTPSProtocols sets the ordered ALPN preference list consulted by
// SessionPool on first request to an https origin. Default ["http2",
// "http1"]; ["http1"] disables HTTP/2 entirely.
func WithHTTPSProtocols(protocols ...string) ContextOption {
	return func(c *contextConfig) error {
		if len(protocols) == 0 {
			return fmt.Errorf("httpsProtocols must not be empty")
		}
		for _, p := range protocols {
			if p != "http1" && p != "http2" {
				return fmt.Errorf("unknown protocol %q, want \"http1\" or \"http2\"", p)
			}
		}
		c.httpsProtocols = protocols
		return nil
	}
}

// WithUserAgent sets the default User-Agent header value attached to
// requests that don't already carry one (or always, if combined with
// WithOverwriteUserAgent).
func WithUserAgent(userAgent string) ContextOption {
	return func(c *contextConfig) error {
		c.userAgent = userAgent
		return nil
	}
}

// WithOverwriteUserAgent, when true, sets User-Agent to the configured
// userAgent even when the caller's request already supplied one.
func WithOverwriteUserAgent(overwrite bool) ContextOption {
	return func(c *contextConfig) error {
		c.overwriteUserAgent = overwrite
		return nil
	}
}

// WithPushPromiseTimeout bounds how long PushRegistry waits to drain a
// pushed stream's body before discarding it. Zero means no timeout. The wait
// for the pushed stream's headers is not bounded by it: a Push reaches
// PushRegistry with its head already received.
func WithPushPromiseTimeout(d time.Duration) ContextOption {
	return func(c *contextConfig) error {
		c.pushPromiseTimeout = d
		return nil
	}
}

// WithCollector installs a Collector to receive cache and dispatch
// instrumentation events, wired into CacheStore, SessionPool and
// PushRegistry alike.
func WithCollector(collector Collector) ContextOption {
	return func(c *contextConfig) error {
		c.collector = collector
		return nil
	}
}

// WithResilience installs retry/circuit-breaker policies around every
// origin's transport round trips, composed with the per-request timeout
// §4.5 already enforces. Nil (the default) disables both.
func WithResilience(cfg *ResilienceConfig) ContextOption {
	return func(c *contextConfig) error {
		c.resilience = cfg
		return nil
	}
}
