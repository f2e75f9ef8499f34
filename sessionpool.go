package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultRedirectLimit = 20

// sessionProtocol records which protocol a Session negotiated.
type sessionProtocol int

const (
	protoHTTP1 sessionProtocol = iota
	protoHTTP2
)

// session is the per-origin record described in §4.5 (C5):
// {protocol, transportHandle, lastActivity}.
type session struct {
	origin       string
	protocol     sessionProtocol
	transport    Transport
	lastActivity time.Time
}

// SessionPool maps an origin (scheme+host+port) to a Session, selecting and
// caching a protocol per origin and dispatching requests (including
// redirect-following) through it, per §4.5.
type SessionPool struct {
	mu             sync.Mutex
	sessions       map[string]*session
	httpsProtocols []string
	redirectLimit  int
	collector      Collector
	pushRegistry   *PushRegistry

	// newTransport builds a Transport for an origin; forceHTTP1 reflects
	// either httpsProtocols excluding "http2", a non-https scheme, or a
	// prior ALPN downgrade cached for this origin. Overridable in tests.
	newTransport func(forceHTTP1 bool) Transport
}

// NewSessionPool constructs a SessionPool. httpsProtocols is the ordered
// ALPN preference list (default ["http2","http1"] if empty).
func NewSessionPool(httpsProtocols []string) *SessionPool {
	if len(httpsProtocols) == 0 {
		httpsProtocols = []string{"http2", "http1"}
	}
	return &SessionPool{
		sessions:       make(map[string]*session),
		httpsProtocols: httpsProtocols,
		redirectLimit:  defaultRedirectLimit,
		collector:      NoOpCollector{},
		newTransport:   func(forceHTTP1 bool) Transport { return newStdTransport(forceHTTP1) },
	}
}

// SetResilience installs retry/circuit-breaker policies applied around
// every origin's transport round trips from then on; existing sessions are
// unaffected until they're rebuilt (e.g. by downgrade).
func (p *SessionPool) SetResilience(cfg *ResilienceConfig) {
	p.newTransport = func(forceHTTP1 bool) Transport {
		t := newStdTransport(forceHTTP1)
		t.resilience = cfg
		return t
	}
}

func (p *SessionPool) SetCollector(c Collector) {
	if c != nil {
		p.collector = c
	}
}

func (p *SessionPool) SetPushRegistry(r *PushRegistry) {
	p.pushRegistry = r
}

func (p *SessionPool) allowsHTTP2() bool {
	for _, proto := range p.httpsProtocols {
		if proto == "http2" {
			return true
		}
	}
	return false
}

// originOf returns the scheme+host+port grouping key for u.
func originOf(scheme, host string) string {
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

// sessionFor returns (creating if needed) the Session for req's origin, per
// the protocol-selection rule: https origins try http2 first if allowed by
// httpsProtocols, downgrading to http1 on failure and caching that
// downgrade for the origin's lifetime in the pool; http:// origins are
// always http1.
func (p *SessionPool) sessionFor(u *url.URL) *session {
	origin := originOf(u.Scheme, u.Host)

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[origin]; ok {
		s.lastActivity = time.Now()
		return s
	}

	forceHTTP1 := u.Scheme != "https" || !p.allowsHTTP2()
	protocol := protoHTTP1
	if !forceHTTP1 {
		protocol = protoHTTP2
	}

	s := &session{
		origin:       origin,
		protocol:     protocol,
		transport:    p.newTransport(forceHTTP1),
		lastActivity: time.Now(),
	}
	if src, ok := s.transport.(PushSource); ok && p.pushRegistry != nil {
		src.SetPushHandler(p.pushRegistry.ingest)
	}
	p.sessions[origin] = s
	return s
}

// downgrade marks origin's session as http1-only after an ALPN/h2 failure,
// replacing its transport and caching the downgrade for the pool's
// lifetime.
func (p *SessionPool) downgrade(origin string) *session {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[origin]
	if !ok || s.protocol == protoHTTP1 {
		return s
	}
	GetLogger().Debug("downgrading session to HTTP/1.1 after negotiation failure", "origin", origin)
	s.transport.Close()
	s.protocol = protoHTTP1
	s.transport = p.newTransport(true)
	if src, ok := s.transport.(PushSource); ok && p.pushRegistry != nil {
		src.SetPushHandler(p.pushRegistry.ingest)
	}
	return s
}

// Dispatch sends req, following redirects per req.Redirect and §4.5's
// redirect rules, and returns the final response head, body stream, final
// URL and whether any redirect was followed.
func (p *SessionPool) Dispatch(ctx context.Context, req *Request) (ResponseHead, io.ReadCloser, string, bool, error) {
	current := req
	redirected := false
	finalURL := req.URL

	for hop := 0; ; hop++ {
		u, err := current.resolvedURL()
		if err != nil {
			return ResponseHead{}, nil, finalURL, redirected, newError("sessionPool", KindInvalidArgument, err)
		}

		s := p.sessionFor(u)

		start := time.Now()
		head, body, err := s.transport.RoundTrip(ctx, current)
		duration := time.Since(start)
		httpVersionLabel := "1.1"
		if s.protocol == protoHTTP2 {
			httpVersionLabel = "2"
		}
		p.collector.SessionDispatch(s.origin, httpVersionLabel, duration, err)

		if err != nil {
			if s.protocol == protoHTTP2 && isNegotiationFailure(err) {
				s = p.downgrade(s.origin)
				head, body, err = s.transport.RoundTrip(ctx, current)
				p.collector.SessionDispatch(s.origin, "1.1", time.Since(start), err)
			}
			if err != nil {
				return ResponseHead{}, nil, finalURL, redirected, err
			}
		}

		if !isRedirectStatus(head.StatusCode) || current.Redirect == RedirectManual {
			finalURL = u.String()
			return head, body, finalURL, redirected, nil
		}

		if current.Redirect == RedirectError {
			io.Copy(io.Discard, body)
			body.Close()
			return ResponseHead{}, nil, finalURL, redirected, newError("sessionPool", KindNetwork, fmt.Errorf("unexpected redirect to %s", head.Header.Get("Location")))
		}

		if hop >= p.redirectLimit {
			io.Copy(io.Discard, body)
			body.Close()
			return ResponseHead{}, nil, finalURL, redirected, newError("sessionPool", KindTooManyRedirects, fmt.Errorf("exceeded %d redirects", p.redirectLimit))
		}

		next, err := nextRedirectRequest(current, u, head)
		io.Copy(io.Discard, body)
		body.Close()
		if err != nil {
			return ResponseHead{}, nil, finalURL, redirected, err
		}

		current = next
		redirected = true
	}
}

// isRedirectStatus reports whether code is one of the redirect statuses
// §4.5 says to follow.
func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// nextRedirectRequest builds the request for the next hop: a 303 always
// converts to GET and drops the body; other redirect statuses preserve
// method and body.
func nextRedirectRequest(prev *Request, prevURL *url.URL, head ResponseHead) (*Request, error) {
	location := head.Header.Get("Location")
	if location == "" {
		return nil, newError("sessionPool", KindNetwork, fmt.Errorf("redirect response missing Location"))
	}
	target, err := prevURL.Parse(location)
	if err != nil {
		return nil, newError("sessionPool", KindNetwork, fmt.Errorf("invalid redirect Location %q: %w", location, err))
	}

	next := &Request{
		Method:      prev.Method,
		URL:         target.String(),
		Header:      prev.Header.Clone(),
		Body:        prev.Body,
		Timeout:     prev.Timeout,
		Redirect:    prev.Redirect,
		CacheMode:   prev.CacheMode,
		ContentType: prev.ContentType,
	}
	if head.StatusCode == http.StatusSeeOther {
		next.Method = http.MethodGet
		next.Body = nil
	}
	return next, nil
}

// isNegotiationFailure reports whether err looks like an ALPN/HTTP2
// negotiation failure rather than an ordinary network error, so the pool
// only downgrades on the specific failure mode §4.5 describes.
func isNegotiationFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "http2") || strings.Contains(msg, "ALPN") || strings.Contains(msg, "protocol negotiat")
}

// DisconnectAll closes every session; subsequent use re-opens lazily.
func (p *SessionPool) DisconnectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for origin, s := range p.sessions {
		if err := s.transport.Close(); err != nil {
			GetLogger().Debug("error closing session transport", "origin", origin, "error", err)
		}
	}
	p.sessions = make(map[string]*session)
}
