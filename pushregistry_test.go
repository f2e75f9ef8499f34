package fetch

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushRegistry_StoresStorablePush(t *testing.T) {
	store := NewCacheStore(1024)
	registry := NewPushRegistry(store)

	push := Push{
		URL: "https://example.com/pushed.js",
		Head: ResponseHead{
			StatusCode: 200,
			Header:     http.Header{"Cache-Control": {"max-age=60"}},
		},
		Body: io.NopCloser(strings.NewReader("console.log(1)")),
	}
	registry.ingest(push)

	key, err := computeFingerprint(&Request{Method: "GET", URL: push.URL, Header: http.Header{}}, nil)
	require.NoError(t, err)
	entry, _, ok := store.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "console.log(1)", string(entry.Body.Bytes()))
}

func TestPushRegistry_DoesNotStoreNonStorablePush(t *testing.T) {
	store := NewCacheStore(1024)
	registry := NewPushRegistry(store)

	push := Push{
		URL:  "https://example.com/pushed.js",
		Head: ResponseHead{StatusCode: 200, Header: http.Header{"Cache-Control": {"no-store"}}},
		Body: io.NopCloser(strings.NewReader("x")),
	}
	registry.ingest(push)

	key, _ := computeFingerprint(&Request{Method: "GET", URL: push.URL, Header: http.Header{}}, nil)
	_, _, ok := store.Lookup(key)
	assert.False(t, ok)
}

func TestPushRegistry_NotifiesObserversInRegistrationOrder(t *testing.T) {
	store := NewCacheStore(1024)
	registry := NewPushRegistry(store)

	var mu sync.Mutex
	var order []string
	registry.OnPush(func(url string) {
		mu.Lock()
		order = append(order, "first:"+url)
		mu.Unlock()
	})
	registry.OnPush(func(url string) {
		mu.Lock()
		order = append(order, "second:"+url)
		mu.Unlock()
	})

	push := Push{
		URL:  "https://example.com/a",
		Head: ResponseHead{StatusCode: 200, Header: http.Header{"Cache-Control": {"max-age=60"}}},
		Body: io.NopCloser(strings.NewReader("x")),
	}
	registry.ingest(push)

	require.Len(t, order, 2)
	assert.Equal(t, "first:https://example.com/a", order[0])
	assert.Equal(t, "second:https://example.com/a", order[1])
}

func TestPushRegistry_PanickingObserverDoesNotBlockOthers(t *testing.T) {
	store := NewCacheStore(1024)
	registry := NewPushRegistry(store)

	secondCalled := false
	registry.OnPush(func(string) { panic("boom") })
	registry.OnPush(func(string) { secondCalled = true })

	push := Push{
		URL:  "https://example.com/a",
		Head: ResponseHead{StatusCode: 200, Header: http.Header{"Cache-Control": {"max-age=60"}}},
		Body: io.NopCloser(strings.NewReader("x")),
	}
	registry.ingest(push)

	assert.True(t, secondCalled)
}

func TestPushRegistry_OffPushDeregisters(t *testing.T) {
	store := NewCacheStore(1024)
	registry := NewPushRegistry(store)

	called := false
	fn := func(string) { called = true }
	registry.OnPush(fn)
	registry.OffPush(fn)

	push := Push{
		URL:  "https://example.com/a",
		Head: ResponseHead{StatusCode: 200, Header: http.Header{"Cache-Control": {"max-age=60"}}},
		Body: io.NopCloser(strings.NewReader("x")),
	}
	registry.ingest(push)

	assert.False(t, called)
}

func TestPushRegistry_OffPushWithoutRegistrationIsNoOp(t *testing.T) {
	registry := NewPushRegistry(NewCacheStore(1024))
	assert.NotPanics(t, func() {
		registry.OffPush(func(string) {})
	})
}

func TestPushRegistry_PushPromiseTimeoutDiscardsSlowBody(t *testing.T) {
	store := NewCacheStore(1024)
	registry := NewPushRegistry(store)
	registry.SetPushPromiseTimeout(10 * time.Millisecond)

	push := Push{
		URL:  "https://example.com/slow.js",
		Head: ResponseHead{StatusCode: 200, Header: http.Header{"Cache-Control": {"max-age=60"}}},
		Body: io.NopCloser(newSlowReader(50 * time.Millisecond)),
	}
	registry.ingest(push)

	key, _ := computeFingerprint(&Request{Method: "GET", URL: push.URL, Header: http.Header{}}, nil)
	_, _, ok := store.Lookup(key)
	assert.False(t, ok, "a push whose body isn't drained within pushPromiseTimeout must be discarded")
}

// slowReader blocks for delay before yielding a single byte then EOF,
// simulating a pushed stream whose body arrives too slowly.
type slowReader struct {
	delay time.Duration
	done  bool
}

func newSlowReader(delay time.Duration) *slowReader { return &slowReader{delay: delay} }

func (r *slowReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	time.Sleep(r.delay)
	r.done = true
	p[0] = 'x'
	return 1, nil
}
