package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"golang.org/x/net/http2"
)

// resilienceToPolicies orders resilience policies outermost-first the way
// the teacher's executeWithResilience does: retry innermost, circuit
// breaker outermost, so an open breaker short-circuits before any retry
// attempt is made.
func resilienceToPolicies(cfg *ResilienceConfig) []failsafe.Policy[*http.Response] {
	if cfg == nil {
		return nil
	}
	var policies []failsafe.Policy[*http.Response]
	if cfg.CircuitBreaker != nil {
		policies = append(policies, cfg.CircuitBreaker)
	}
	if cfg.RetryPolicy != nil {
		policies = append(policies, cfg.RetryPolicy)
	}
	return policies
}

// stdTransport adapts a net/http RoundTripper (optionally HTTP/2-capable
// via golang.org/x/net/http2, per the pack's ALPN-negotiated transport
// idiom) to the Transport interface. http.Transport already falls back
// silently to HTTP/1.1 per connection when ALPN doesn't negotiate h2, so
// forceHTTP1 is the only explicit knob SessionPool needs: it builds a
// second stdTransport with HTTP/2 disabled once an origin has been marked
// downgraded.
//
// Client-side push ingestion is exercised in tests via a fake Transport
// that implements PushSource directly; wiring a live HTTP/2 push-promise
// listener through golang.org/x/net/http2's client internals is left as a
// follow-up (the client-push surface isn't stable across the versions this
// module pins against).
type stdTransport struct {
	rt          http.RoundTripper
	h2Transport *http2.Transport
	resilience  *ResilienceConfig
}

// newStdTransport builds a stdTransport. When forceHTTP1 is false the
// returned transport negotiates HTTP/2 via ALPN for https origins and
// falls back to HTTP/1.1 automatically; when true it never attempts h2.
func newStdTransport(forceHTTP1 bool) *stdTransport {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if forceHTTP1 {
		base.TLSClientConfig = &tls.Config{NextProtos: []string{"http/1.1"}}
		return &stdTransport{rt: base}
	}

	h2, err := http2.ConfigureTransports(base)
	if err != nil {
		GetLogger().Warn("failed to configure HTTP/2 transport, continuing HTTP/1.1 only", "error", err)
		return &stdTransport{rt: base}
	}
	return &stdTransport{rt: base, h2Transport: h2}
}

// RoundTrip implements Transport. request.Timeout, when set, bounds the
// whole in-flight stream, not just the wait for headers: the request is
// issued against a context derived with context.WithTimeout, so expiry
// cancels httpReq directly and net/http aborts the underlying connection
// read/write rather than merely racing a goroutine against it, per §4.5's
// timeout rule ("a timed-out in-flight request aborts the transport
// stream; partially received bytes are discarded") — the same
// derive-then-cancel idiom the pack's bgContext/cancelContext pattern
// uses. The derived context's cancel is wired to run when the response
// body is closed, so a request that finishes normally releases it
// immediately instead of waiting out the full timeout.
func (t *stdTransport) RoundTrip(ctx context.Context, req *Request) (ResponseHead, io.ReadCloser, error) {
	u, err := req.resolvedURL()
	if err != nil {
		return ResponseHead{}, nil, newError("transport", KindInvalidArgument, err)
	}

	data, contentType, isStream, stream, err := serializedBody(req)
	if err != nil {
		return ResponseHead{}, nil, err
	}

	var bodyReader io.Reader
	if isStream {
		bodyReader = stream
	} else if data != nil {
		bodyReader = bytes.NewReader(data)
	}

	roundTripCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		roundTripCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	httpReq, err := http.NewRequestWithContext(roundTripCtx, req.Method, u.String(), bodyReader)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return ResponseHead{}, nil, newError("transport", KindInvalidArgument, err)
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	} else if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	roundTrip := func() (*http.Response, error) {
		return t.rt.RoundTrip(httpReq)
	}

	policies := resilienceToPolicies(t.resilience)

	var resp *http.Response
	if len(policies) > 0 {
		resp, err = failsafe.With(policies...).Get(roundTrip)
	} else {
		resp, err = roundTrip()
	}
	if err != nil {
		if cancel != nil {
			cancel()
		}
		if roundTripCtx.Err() != nil || isTimeoutErr(err) {
			return ResponseHead{}, nil, newError("transport", KindTimeout, err)
		}
		return ResponseHead{}, nil, newError("transport", KindNetwork, err)
	}

	version := 1
	if resp.ProtoMajor == 2 {
		version = 2
	}

	head := ResponseHead{
		StatusCode:  resp.StatusCode,
		StatusText:  resp.Status,
		HTTPVersion: version,
		Header:      resp.Header,
	}

	body := resp.Body
	if cancel != nil {
		body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	}
	return head, body, nil
}

// cancelOnCloseBody releases a per-request timeout context when its body
// is closed, so the context doesn't outlive the stream it bounds: a
// timeout firing mid-read cancels httpReq's context directly, aborting
// the underlying read per net/http's context-cancellation contract.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func (t *stdTransport) Close() error {
	if tr, ok := t.rt.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
	return nil
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}
