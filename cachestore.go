package fetch

import (
	"container/list"
	"net/http"
	"sync"
	"time"
)

// CacheEntry is the immutable unit CacheStore holds, per §3's Data Model.
// Once inserted an entry is never mutated; a refresh (e.g. after a 304)
// replaces it atomically via store.
type CacheEntry struct {
	StatusCode         int
	StatusText         string
	HTTPVersion        int
	Header             http.Header
	Body               *BodyBuffer
	StoreTime          time.Time
	Date               time.Time
	ApparentAgeSeconds int64
	CacheControl       cacheControl
	Vary               []string
	RetainedBytes      int64
}

type cacheItem struct {
	key   string
	entry *CacheEntry
}

// CacheStore is a bounded LRU mapping fingerprint to CacheEntry with
// byte-budget eviction, per §4.3 (C3). Eviction order is strict LRU by last
// access (read or write), ties broken by insertion order; this is the
// intrusive doubly-linked-list-plus-map shape the pack favors over an
// approximation algorithm at this scale. The write path (store/invalidate/
// clear) is serialized behind mu; lookups take the same lock but only for
// the brief critical section of the map/list touch.
type CacheStore struct {
	mu         sync.Mutex
	maxBytes   int64
	totalBytes int64
	ll         *list.List
	items      map[string]*list.Element
	onEvict    func(key string, entry *CacheEntry)
	collector  Collector
}

// NewCacheStore constructs a CacheStore with the given byte budget.
func NewCacheStore(maxBytes int64) *CacheStore {
	return &CacheStore{
		maxBytes:  maxBytes,
		ll:        list.New(),
		items:     make(map[string]*list.Element),
		collector: NoOpCollector{},
	}
}

// SetCollector installs the metrics collector used for subsequent
// operations, replacing the default no-op.
func (c *CacheStore) SetCollector(collector Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if collector != nil {
		c.collector = collector
	}
}

// Lookup returns the entry for key and its age in seconds, touching
// recency on hit, per §4.3's age accounting: ageSeconds = max(0,
// nowMonotonic - entry.storeTimestamp) + apparentAgeFromDateHeader, where
// the apparent age component was computed at store time and is embedded in
// the entry rather than recomputed here.
func (c *CacheStore) Lookup(key string) (*CacheEntry, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.collector.CacheMiss(key)
		return nil, 0, false
	}
	c.ll.MoveToFront(elem)
	entry := elem.Value.(*cacheItem).entry

	resident := time.Since(entry.StoreTime)
	if resident < 0 {
		resident = 0
	}
	age := int64(resident.Seconds()) + entry.ApparentAgeSeconds
	c.collector.CacheHit(key)
	return entry, age, true
}

// Store inserts or replaces the entry for key, then evicts least-recently
// used entries until totalBytes <= maxBytes. If entry alone exceeds the
// budget, Store leaves the cache unchanged and returns false; the caller
// must still be able to serve a live response in that case.
func (c *CacheStore) Store(key string, entry *CacheEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.RetainedBytes > c.maxBytes {
		GetLogger().Debug("cache entry exceeds maxCacheSize, not storing", "key", key, "bytes", entry.RetainedBytes)
		return false
	}

	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*cacheItem).entry
		c.totalBytes -= old.RetainedBytes
		elem.Value = &cacheItem{key: key, entry: entry}
		c.ll.MoveToFront(elem)
	} else {
		elem := c.ll.PushFront(&cacheItem{key: key, entry: entry})
		c.items[key] = elem
	}
	c.totalBytes += entry.RetainedBytes

	for c.totalBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.evictElement(back)
	}

	c.collector.CacheStore(key, entry.RetainedBytes)
	return true
}

// Invalidate removes key, if present.
func (c *CacheStore) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.evictElement(elem)
	}
}

// Clear empties the store.
func (c *CacheStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.totalBytes = 0
}

// Stats reports the current entry count and retained byte total.
type CacheStats struct {
	Count int
	Bytes int64
}

func (c *CacheStore) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Count: len(c.items), Bytes: c.totalBytes}
}

// evictElement removes elem from both the list and map; caller holds mu.
func (c *CacheStore) evictElement(elem *list.Element) {
	item := elem.Value.(*cacheItem)
	c.ll.Remove(elem)
	delete(c.items, item.key)
	c.totalBytes -= item.entry.RetainedBytes
	if c.onEvict != nil {
		c.onEvict(item.key, item.entry)
	}
	c.collector.CacheEvict(item.key)
}
