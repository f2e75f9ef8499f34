// Package fetch provides a dual-protocol HTTP client that negotiates HTTP/1.1
// and HTTP/2 per origin, pools sessions, caches responses per RFC 7234
// freshness and validation rules within a bounded byte budget, and ingests
// HTTP/2 server-pushed resources into that same cache.
//
// A process-wide default Context is created lazily; Fetch, OnPush, OffPush,
// DisconnectAll, ClearCache and CacheStats delegate to it. Call NewContext
// to obtain an independent instance with its own session pool, cache and
// push registry.
package fetch
