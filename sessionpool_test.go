package fetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a Transport test double, mirroring the teacher's
// newMockCacheTransport pattern of driving SessionPool/RequestEngine
// against a scripted fake rather than a live server.
type fakeTransport struct {
	mu          sync.Mutex
	responses   []fakeResponse
	requests    []*Request
	calls       int
	closed      bool
	pushHandler func(Push)
}

type fakeResponse struct {
	head ResponseHead
	body string
	err  error
}

func (f *fakeTransport) RoundTrip(ctx context.Context, req *Request) (ResponseHead, io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.calls >= len(f.responses) {
		return ResponseHead{}, nil, errNoScriptedResponse
	}
	r := f.responses[f.calls]
	f.calls++
	if r.err != nil {
		return ResponseHead{}, nil, r.err
	}
	return r.head, io.NopCloser(strings.NewReader(r.body)), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) SetPushHandler(fn func(Push)) {
	f.pushHandler = fn
}

var errNoScriptedResponse = &Error{Kind: KindNetwork, Op: "fakeTransport", Err: errNoScriptedResponsesLeft{}}

type errNoScriptedResponsesLeft struct{}

func (errNoScriptedResponsesLeft) Error() string { return "no scripted response left" }

func newFakeSessionPool(t *testing.T, transport *fakeTransport) *SessionPool {
	t.Helper()
	p := NewSessionPool(nil)
	p.newTransport = func(forceHTTP1 bool) Transport { return transport }
	return p
}

func TestSessionPool_DispatchReturnsResponse(t *testing.T) {
	transport := &fakeTransport{responses: []fakeResponse{
		{head: ResponseHead{StatusCode: 200, Header: http.Header{}}, body: "hello"},
	}}
	p := newFakeSessionPool(t, transport)

	req := &Request{Method: "GET", URL: "https://example.com/a", Header: http.Header{}}
	head, body, finalURL, redirected, err := p.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, head.StatusCode)
	assert.False(t, redirected)
	assert.Equal(t, "https://example.com/a", finalURL)

	data, _ := io.ReadAll(body)
	assert.Equal(t, "hello", string(data))
}

func TestSessionPool_FollowsRedirect(t *testing.T) {
	transport := &fakeTransport{responses: []fakeResponse{
		{head: ResponseHead{StatusCode: 302, Header: http.Header{"Location": {"https://example.com/b"}}}, body: ""},
		{head: ResponseHead{StatusCode: 200, Header: http.Header{}}, body: "landed"},
	}}
	p := newFakeSessionPool(t, transport)

	req := &Request{Method: "GET", URL: "https://example.com/a", Header: http.Header{}, Redirect: RedirectFollow}
	head, body, finalURL, redirected, err := p.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, head.StatusCode)
	assert.True(t, redirected)
	assert.Equal(t, "https://example.com/b", finalURL)
	data, _ := io.ReadAll(body)
	assert.Equal(t, "landed", string(data))
}

func TestSessionPool_RedirectModeManualReturnsRedirectItself(t *testing.T) {
	transport := &fakeTransport{responses: []fakeResponse{
		{head: ResponseHead{StatusCode: 302, Header: http.Header{"Location": {"https://example.com/b"}}}, body: ""},
	}}
	p := newFakeSessionPool(t, transport)

	req := &Request{Method: "GET", URL: "https://example.com/a", Header: http.Header{}, Redirect: RedirectManual}
	head, _, _, redirected, err := p.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 302, head.StatusCode)
	assert.False(t, redirected)
}

func TestSessionPool_RedirectModeErrorSurfacesNetworkError(t *testing.T) {
	transport := &fakeTransport{responses: []fakeResponse{
		{head: ResponseHead{StatusCode: 302, Header: http.Header{"Location": {"https://example.com/b"}}}, body: ""},
	}}
	p := newFakeSessionPool(t, transport)

	req := &Request{Method: "GET", URL: "https://example.com/a", Header: http.Header{}, Redirect: RedirectError}
	_, _, _, _, err := p.Dispatch(context.Background(), req)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestSessionPool_303ConvertsToGETAndDropsBody(t *testing.T) {
	transport := &fakeTransport{responses: []fakeResponse{
		{head: ResponseHead{StatusCode: 303, Header: http.Header{"Location": {"https://example.com/b"}}}, body: ""},
		{head: ResponseHead{StatusCode: 200, Header: http.Header{}}, body: "ok"},
	}}
	p := newFakeSessionPool(t, transport)

	body := Body{Kind: BodyKindText, Text: "payload"}
	req := &Request{Method: "POST", URL: "https://example.com/a", Header: http.Header{}, Body: &body}
	_, _, _, _, err := p.Dispatch(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, transport.requests, 2)
	assert.Equal(t, http.MethodGet, transport.requests[1].Method)
	assert.Nil(t, transport.requests[1].Body)
}

func TestSessionPool_TooManyRedirects(t *testing.T) {
	var responses []fakeResponse
	for i := 0; i < 25; i++ {
		responses = append(responses, fakeResponse{head: ResponseHead{StatusCode: 302, Header: http.Header{"Location": {"https://example.com/a"}}}})
	}
	transport := &fakeTransport{responses: responses}
	p := newFakeSessionPool(t, transport)

	req := &Request{Method: "GET", URL: "https://example.com/a", Header: http.Header{}}
	_, _, _, _, err := p.Dispatch(context.Background(), req)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTooManyRedirects, fetchErr.Kind)
}

func TestSessionPool_PushHandlerWiredWhenRegistrySet(t *testing.T) {
	transport := &fakeTransport{responses: []fakeResponse{
		{head: ResponseHead{StatusCode: 200, Header: http.Header{}}, body: "ok"},
	}}
	p := newFakeSessionPool(t, transport)
	registry := NewPushRegistry(NewCacheStore(1024))
	p.SetPushRegistry(registry)

	req := &Request{Method: "GET", URL: "https://example.com/a", Header: http.Header{}}
	_, _, _, _, err := p.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, transport.pushHandler)
}

func TestSessionPool_DisconnectAllClosesTransports(t *testing.T) {
	transport := &fakeTransport{responses: []fakeResponse{
		{head: ResponseHead{StatusCode: 200, Header: http.Header{}}, body: "ok"},
	}}
	p := newFakeSessionPool(t, transport)

	req := &Request{Method: "GET", URL: "https://example.com/a", Header: http.Header{}}
	_, _, _, _, err := p.Dispatch(context.Background(), req)
	require.NoError(t, err)

	p.DisconnectAll()
	assert.True(t, transport.closed)
}
