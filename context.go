package fetch

import (
	"context"
	"sync"
)

// Context is a self-contained instance binding one configuration to one
// SessionPool, one CacheStore and one PushRegistry, per §4.8 (C8). The
// zero value is not usable; construct one with NewContext.
type Context struct {
	engine       *RequestEngine
	sessionPool  *SessionPool
	cacheStore   *CacheStore
	pushRegistry *PushRegistry
}

// NewContext builds an independent Context from the given options. Each
// Context owns its own SessionPool, CacheStore and PushRegistry; no state is
// shared with any other Context, including the process default.
func NewContext(opts ...ContextOption) (*Context, error) {
	cfg := defaultContextConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, newError("context", KindInvalidArgument, err)
		}
	}

	cacheStore := NewCacheStore(cfg.maxCacheSize)
	sessionPool := NewSessionPool(cfg.httpsProtocols)
	if cfg.resilience != nil {
		sessionPool.SetResilience(cfg.resilience)
	}
	pushRegistry := NewPushRegistry(cacheStore)
	pushRegistry.SetPushPromiseTimeout(cfg.pushPromiseTimeout)
	sessionPool.SetPushRegistry(pushRegistry)

	cacheStore.SetCollector(cfg.collector)
	sessionPool.SetCollector(cfg.collector)
	pushRegistry.SetCollector(cfg.collector)

	engine := NewRequestEngine(cacheStore, sessionPool, pushRegistry)
	engine.SetUserAgent(cfg.userAgent, cfg.overwriteUserAgent)

	return &Context{
		engine:       engine,
		sessionPool:  sessionPool,
		cacheStore:   cacheStore,
		pushRegistry: pushRegistry,
	}, nil
}

// Fetch performs one request through this Context's engine, per §4.7.
func (c *Context) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	req, err := newRequest(rawURL, opts)
	if err != nil {
		return nil, err
	}
	return c.engine.Fetch(ctx, req)
}

// OnPush registers fn as an observer of pushed URLs accepted into this
// Context's cache.
func (c *Context) OnPush(fn func(string)) {
	c.pushRegistry.OnPush(fn)
}

// OffPush deregisters fn. A no-op if fn was never registered.
func (c *Context) OffPush(fn func(string)) {
	c.pushRegistry.OffPush(fn)
}

// DisconnectAll closes every session in this Context's pool; subsequent use
// re-opens sessions lazily.
func (c *Context) DisconnectAll() {
	c.sessionPool.DisconnectAll()
}

// ClearCache empties this Context's CacheStore.
func (c *Context) ClearCache() {
	c.cacheStore.Clear()
}

// CacheStats reports this Context's CacheStore occupancy.
func (c *Context) CacheStats() CacheStats {
	return c.cacheStore.Stats()
}

var (
	defaultContext     *Context
	defaultContextOnce sync.Once
)

// defaultCtx returns the process-wide default Context, constructing it
// lazily on first use, mirroring the package's GetLogger singleton pattern.
func defaultCtx() *Context {
	defaultContextOnce.Do(func() {
		// Options validated in defaultContextConfig can never fail here.
		defaultContext, _ = NewContext()
	})
	return defaultContext
}

// Fetch performs one request through the process-wide default Context.
func Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	return defaultCtx().Fetch(ctx, url, opts)
}

// OnPush registers fn with the process-wide default Context.
func OnPush(fn func(string)) {
	defaultCtx().OnPush(fn)
}

// OffPush deregisters fn from the process-wide default Context.
func OffPush(fn func(string)) {
	defaultCtx().OffPush(fn)
}

// DisconnectAll closes every session in the process-wide default Context.
func DisconnectAll() {
	defaultCtx().DisconnectAll()
}

// ClearCache empties the process-wide default Context's cache.
func ClearCache() {
	defaultCtx().ClearCache()
}

// CacheStats reports the process-wide default Context's cache occupancy.
func CacheStats() CacheStats {
	return defaultCtx().CacheStats()
}
