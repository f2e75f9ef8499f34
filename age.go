package fetch

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// errNoDateHeader indicates a response had no Date header.
var errNoDateHeader = errors.New("no Date header")

// parseDate parses the Date header, per RFC 9111 §4.2.3.
func parseDate(header http.Header) (time.Time, error) {
	v := header.Get("Date")
	if v == "" {
		return time.Time{}, errNoDateHeader
	}
	return time.Parse(time.RFC1123, v)
}

// parseAgeHeader parses an origin's own Age header, per RFC 9111 §5.1:
// multiple values keep the first, a negative or non-numeric value is
// treated as absent.
func parseAgeHeader(header http.Header) (time.Duration, bool) {
	values := header.Values("Age")
	if len(values) == 0 {
		return 0, false
	}
	if len(values) > 1 {
		GetLogger().Debug("multiple Age headers, using first", "count", len(values))
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// apparentAgeAtStore computes the apparent_age term of RFC 9111 §4.2.3 —
// max(0, receivedAt - dateValue) — plus any Age header the origin already
// sent, folded in once at store time per §4.3's age-accounting note
// ("apparent age is ... computed at store time and embedded in the entry,
// kept, not recomputed").
func apparentAgeAtStore(header http.Header, receivedAt time.Time) int64 {
	dateValue, err := parseDate(header)
	if err != nil {
		if age, ok := parseAgeHeader(header); ok {
			return int64(age.Seconds())
		}
		return 0
	}

	apparent := receivedAt.Sub(dateValue)
	if apparent < 0 {
		apparent = 0
	}
	if age, ok := parseAgeHeader(header); ok {
		apparent += age
	}
	return int64(apparent.Seconds())
}

// formatAge renders an age in seconds as an Age header value.
func formatAge(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return strconv.FormatInt(seconds, 10)
}
