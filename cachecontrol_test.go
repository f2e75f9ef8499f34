package fetch

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCacheControl_Basic(t *testing.T) {
	h := http.Header{"Cache-Control": {"max-age=60, no-cache"}}
	cc := parseCacheControl(h)

	assert.True(t, cc.has(ccNoCache))
	d, ok := cc.duration(ccMaxAge)
	assert.True(t, ok)
	assert.Equal(t, 60*time.Second, d)
}

func TestParseCacheControl_DuplicateKeepsFirst(t *testing.T) {
	h := http.Header{"Cache-Control": {"max-age=60, max-age=120"}}
	cc := parseCacheControl(h)

	d, ok := cc.duration(ccMaxAge)
	assert.True(t, ok)
	assert.Equal(t, 60*time.Second, d)
}

func TestParseCacheControl_PublicPrivateConflict(t *testing.T) {
	h := http.Header{"Cache-Control": {"public, private"}}
	cc := parseCacheControl(h)

	assert.True(t, cc.has(ccPrivate))
	assert.False(t, cc.has(ccPublic))
}

func TestParseCacheControl_InvalidDurationDropped(t *testing.T) {
	h := http.Header{"Cache-Control": {"max-age=not-a-number"}}
	cc := parseCacheControl(h)

	_, ok := cc.duration(ccMaxAge)
	assert.False(t, ok)
}

func TestParseCacheControl_NoStore(t *testing.T) {
	h := http.Header{"Cache-Control": {"no-store"}}
	cc := parseCacheControl(h)
	assert.True(t, cc.has(ccNoStore))
}
