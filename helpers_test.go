package fetch

import (
	"net/url"
	"testing"
)

// mustParseURL parses rawURL or fails the test, shared by this package's
// table-driven tests.
func mustParseURL(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", rawURL, err)
	}
	return u
}
