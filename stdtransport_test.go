package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdTransport_TimeoutAbortsBeforeHeaders(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer close(release)
	defer server.Close()

	transport := newStdTransport(true)
	req := &Request{Method: http.MethodGet, URL: server.URL, Timeout: 30 * time.Millisecond}

	start := time.Now()
	_, _, err := transport.RoundTrip(context.Background(), req)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, TimeoutError)
	assert.Less(t, elapsed, 500*time.Millisecond, "RoundTrip must abort at the timeout, not wait on the stalled peer")
}

// TestStdTransport_TimeoutAbortsInFlightBody covers spec.md's "a timed-out
// in-flight request aborts the transport stream; partially received bytes
// are discarded" rule: headers arrive before the timeout, but the body
// stalls mid-stream. The handler signals whether it was allowed to finish
// writing (serverFinished) or observed the client's connection go away
// first (serverAborted), so the test fails if the round trip merely races
// a goroutine against the real connection instead of cancelling it.
func TestStdTransport_TimeoutAbortsInFlightBody(t *testing.T) {
	started := make(chan struct{})
	serverAborted := make(chan struct{})
	serverFinished := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("first-chunk"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		select {
		case <-r.Context().Done():
			close(serverAborted)
		case <-time.After(500 * time.Millisecond):
			w.Write([]byte("rest-of-body"))
			close(serverFinished)
		}
	}))
	defer server.Close()

	transport := newStdTransport(true)
	req := &Request{Method: http.MethodGet, URL: server.URL, Timeout: 50 * time.Millisecond}

	head, body, err := transport.RoundTrip(context.Background(), req)
	require.NoError(t, err, "headers should arrive well before the 500ms stall")
	assert.Equal(t, http.StatusOK, head.StatusCode)

	<-started
	_, readErr := io.ReadAll(body)
	body.Close()
	assert.Error(t, readErr, "reading past the timeout must fail rather than silently return the partial body")

	select {
	case <-serverAborted:
	case <-serverFinished:
		t.Fatal("server finished writing the body; the client never aborted the in-flight stream on timeout")
	case <-time.After(2 * time.Second):
		t.Fatal("server observed neither abort nor completion")
	}
}

func TestStdTransport_NoTimeoutDoesNotAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	transport := newStdTransport(true)
	req := &Request{Method: http.MethodGet, URL: server.URL}

	head, body, err := transport.RoundTrip(context.Background(), req)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, http.StatusOK, head.StatusCode)
	assert.Equal(t, "ok", string(data))
}
