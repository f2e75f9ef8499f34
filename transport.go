package fetch

import (
	"context"
	"io"
	"net/http"
)

// ResponseHead is the status line and headers a Transport yields before a
// response body is available, per §4.5 (C5)'s send(request, session) ->
// ResponseHead + BodyStream contract.
type ResponseHead struct {
	StatusCode  int
	StatusText  string
	HTTPVersion int // 1 or 2
	Header      http.Header
}

// Push is a server-pushed resource surfaced by a Transport, per §4.6 (C6):
// the transport notifies PushRegistry with (pushedUrl, pushedResponseHead,
// pushedBodyStream).
type Push struct {
	URL  string
	Head ResponseHead
	Body io.ReadCloser
}

// Transport is the external collaborator that actually performs a protocol
// round trip for one session. SessionPool depends on this interface rather
// than a concrete client so it can be exercised against a fake in tests,
// mirroring how the teacher tests Transport.RoundTrip against a fake
// http.RoundTripper instead of a live server.
type Transport interface {
	// RoundTrip sends req and returns the response head plus a body stream
	// the caller must read to completion (or close) to release the
	// connection. Bodies are streamed; implementations must not buffer the
	// whole body before returning.
	RoundTrip(ctx context.Context, req *Request) (ResponseHead, io.ReadCloser, error)

	// Close releases any resources (connections) this Transport holds.
	Close() error
}

// PushSource is implemented by a Transport that can surface HTTP/2 server
// pushes. SessionPool forwards each Push to the Context's PushRegistry.
type PushSource interface {
	// SetPushHandler installs fn to be called for every push this
	// Transport's connections receive. Passing nil removes any handler.
	SetPushHandler(fn func(Push))
}
