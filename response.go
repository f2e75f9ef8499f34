package fetch

import (
	"io"
	"net/http"
	"sync"
)

// Response is the fetch output described in §3's Data Model. Exactly one of
// bufferedBody / liveBody is meaningful at construction time; fromCache
// implies a buffered body. Invariant 5: the body may be consumed once as a
// live stream, or any number of times via buffered accessors. A buffered
// accessor used first materializes the buffered view, which later
// ReadableStream calls reuse; once the live stream itself has been handed
// out, later reads of either kind see an empty body. There is never a second
// live read.
type Response struct {
	StatusCode  int
	StatusText  string
	HTTPVersion int // 1 or 2
	Header      http.Header
	Redirected  bool
	URL         string
	FromCache   bool

	mu           sync.Mutex
	buffered     *BodyBuffer
	live         io.ReadCloser
	liveConsumed bool
}

// newBufferedResponse constructs a Response whose body is already buffered,
// used for cache hits, pushed resources and any MISS_STORE fetch.
func newBufferedResponse(status int, statusText string, httpVersion int, header http.Header, redirected bool, url string, fromCache bool, body *BodyBuffer) *Response {
	return &Response{
		StatusCode:  status,
		StatusText:  statusText,
		HTTPVersion: httpVersion,
		Header:      header,
		Redirected:  redirected,
		URL:         url,
		FromCache:   fromCache,
		buffered:    body,
	}
}

// newLiveResponse constructs a Response streaming straight from the
// transport, used when the response is not storable (MISS_NOSTORE / BYPASS).
func newLiveResponse(status int, statusText string, httpVersion int, header http.Header, redirected bool, url string, body io.ReadCloser) *Response {
	return &Response{
		StatusCode:  status,
		StatusText:  statusText,
		HTTPVersion: httpVersion,
		Header:      header,
		Redirected:  redirected,
		URL:         url,
		live:        body,
	}
}

// ReadableStream returns the response body as a one-shot stream. When the
// body is buffered (a cache hit, or a buffered accessor already materialized
// it), each call returns a fresh stream over the buffered bytes. For a live
// body the first call hands out the live stream itself; later calls return
// an empty stream, as the live bytes are not kept.
func (r *Response) ReadableStream() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buffered != nil {
		return r.buffered.ReadableStream(), nil
	}
	if r.liveConsumed || r.live == nil {
		return io.NopCloser(noBody{}), nil
	}
	r.liveConsumed = true
	return r.live, nil
}

type noBody struct{}

func (noBody) Read([]byte) (int, error) { return 0, io.EOF }

// Buffered returns the response's BodyBuffer, draining the live stream into
// one on first access if necessary. Subsequent calls, and any later
// ReadableStream call, observe the same buffered bytes. If ReadableStream
// already handed out the live stream, Buffered returns an empty BodyBuffer.
func (r *Response) Buffered() (*BodyBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bufferedLocked()
}

func (r *Response) bufferedLocked() (*BodyBuffer, error) {
	if r.buffered != nil {
		return r.buffered, nil
	}
	if r.live == nil || r.liveConsumed {
		r.buffered = NewBodyBuffer(nil, r.Header.Get("Content-Type"))
		return r.buffered, nil
	}
	buf, err := drainToBodyBuffer(r.live, r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	r.liveConsumed = true
	r.buffered = buf
	return r.buffered, nil
}

// Text, JSON and ArrayBuffer delegate to the materialized BodyBuffer,
// draining a live stream on first use.
func (r *Response) Text() (string, error) {
	buf, err := r.Buffered()
	if err != nil {
		return "", err
	}
	return buf.Text()
}

func (r *Response) JSON(v any) error {
	buf, err := r.Buffered()
	if err != nil {
		return err
	}
	return buf.JSON(v)
}

func (r *Response) ArrayBuffer() ([]byte, error) {
	buf, err := r.Buffered()
	if err != nil {
		return nil, err
	}
	return buf.ArrayBuffer(), nil
}
