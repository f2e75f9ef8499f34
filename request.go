package fetch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RedirectMode selects how a Request's redirects are handled, per §3.
type RedirectMode int

const (
	// RedirectFollow follows 301/302/303/307/308 responses up to the
	// session pool's configured limit (default 20). This is the default.
	RedirectFollow RedirectMode = iota
	// RedirectManual returns the redirect response itself without
	// following it.
	RedirectManual
	// RedirectError treats a redirect response as a NetworkError.
	RedirectError
)

// CacheMode selects the Request's cache participation, per §3.
type CacheMode int

const (
	// CacheDefault participates normally in FreshnessPolicy decisions.
	CacheDefault CacheMode = iota
	// CacheNoStore bypasses the cache entirely: no lookup, no store.
	CacheNoStore
)

// BodyKind discriminates the tagged Body variant described in §9's design
// notes (Text | Bytes | Json(Value) | Stream(ByteStream)).
type BodyKind int

const (
	BodyKindNone BodyKind = iota
	BodyKindText
	BodyKindBytes
	BodyKindJSON
	BodyKindStream
)

// Body is the polymorphic request body input. Exactly one accessor field is
// meaningful for a given Kind; serializedBody dispatches on Kind to
// serialize and pick a Content-Type, which stdTransport applies when it
// builds the outgoing request, per design note in §9.
type Body struct {
	Kind   BodyKind
	Text   string
	Bytes  []byte
	JSON   any
	Stream io.Reader
}

// TextBody wraps a string as a request Body.
func TextBody(s string) Body { return Body{Kind: BodyKindText, Text: s} }

// BytesBody wraps a byte slice as a request Body.
func BytesBody(b []byte) Body { return Body{Kind: BodyKindBytes, Bytes: b} }

// JSONBody wraps a structured value as a request Body; stdTransport
// serializes it to UTF-8 JSON and sets Content-Type: application/json
// unless the caller already set one (§4.7 step 2).
func JSONBody(v any) Body { return Body{Kind: BodyKindJSON, JSON: v} }

// StreamBody wraps a readable stream as a request Body.
func StreamBody(r io.Reader) Body { return Body{Kind: BodyKindStream, Stream: r} }

// Request is the fetch input described in §3's Data Model.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Body        *Body
	Timeout     time.Duration
	Redirect    RedirectMode
	CacheMode   CacheMode
	ContentType string // explicit content-type override

	parsedURL *url.URL
}

// Options is the optional, second argument to Fetch, mirroring the public
// surface's fetch(url, options?).
type Options struct {
	Method      string
	Header      http.Header
	Body        *Body
	Timeout     time.Duration
	Redirect    RedirectMode
	CacheMode   CacheMode
	ContentType string
}

// newRequest validates and normalizes a Request from a raw URL and Options,
// implementing §4.7 step 1 (method validation, uppercasing).
func newRequest(rawURL string, opts Options) (*Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, newError("fetch", KindInvalidArgument, fmt.Errorf("method must be a non-empty string"))
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, newError("fetch", KindInvalidArgument, fmt.Errorf("invalid url: %w", err))
	}
	if !parsed.IsAbs() {
		return nil, newError("fetch", KindInvalidArgument, fmt.Errorf("url must be absolute: %s", rawURL))
	}

	header := opts.Header
	if header == nil {
		header = http.Header{}
	} else {
		header = header.Clone()
	}

	return &Request{
		Method:      method,
		URL:         rawURL,
		Header:      header,
		Body:        opts.Body,
		Timeout:     opts.Timeout,
		Redirect:    opts.Redirect,
		CacheMode:   opts.CacheMode,
		ContentType: opts.ContentType,
		parsedURL:   parsed,
	}, nil
}

// resolvedURL returns the parsed *url.URL, computing it lazily for requests
// built directly (as opposed to via newRequest).
func (r *Request) resolvedURL() (*url.URL, error) {
	if r.parsedURL != nil {
		return r.parsedURL, nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, err
	}
	r.parsedURL = u
	return u, nil
}

// serializedBody renders r.Body as bytes and, for a JSON body, the
// Content-Type to set if the caller didn't already set one. Implements
// §4.7 step 2.
func serializedBody(r *Request) (data []byte, contentType string, isStream bool, stream io.Reader, err error) {
	if r.Body == nil {
		return nil, "", false, nil, nil
	}
	switch r.Body.Kind {
	case BodyKindText:
		return []byte(r.Body.Text), "", false, nil, nil
	case BodyKindBytes:
		return r.Body.Bytes, "", false, nil, nil
	case BodyKindJSON:
		b, jerr := json.Marshal(r.Body.JSON)
		if jerr != nil {
			return nil, "", false, nil, newError("fetch", KindInvalidArgument, jerr)
		}
		return b, "application/json", false, nil, nil
	case BodyKindStream:
		return nil, "", true, r.Body.Stream, nil
	default:
		return nil, "", false, nil, nil
	}
}
