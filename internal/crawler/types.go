package crawler

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrTransport covers DNS, connect, TLS, timeout and malformed-response failures.
	ErrTransport = errors.New("transport error")
	// ErrTooManyRedirects is returned when a chain needs more hops than allowed.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrProtocol is returned for unusable redirect targets.
	ErrProtocol = errors.New("protocol error")
)

// RedirectType names the redirect mechanism last followed for a host.
type RedirectType string

const (
	RedirectNone         RedirectType = "none"
	RedirectHTTPLocation RedirectType = "http-location"
	RedirectMetaRefresh  RedirectType = "meta-refresh"
)

// FetchOutcome is the result of a single hop.
type FetchOutcome struct {
	URL          string
	StatusCode   int
	Headers      map[string]string // lowercased keys, last value wins
	Body         []byte
	Location     string // raw Location header, empty when absent
	ResponseTime int64  // milliseconds
}

// newFetchOutcome folds an http.Header into the single-valued lowercase form.
func newFetchOutcome(targetURL string, status int, header http.Header, body []byte) *FetchOutcome {
	headers := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		headers[strings.ToLower(key)] = values[len(values)-1]
	}

	return &FetchOutcome{
		URL:        targetURL,
		StatusCode: status,
		Headers:    headers,
		Body:       body,
		Location:   strings.TrimSpace(headers["location"]),
	}
}

// ContentType returns the content-type header, if any.
func (o *FetchOutcome) ContentType() string {
	return o.Headers["content-type"]
}

// IsHTML reports whether the response declares an HTML body.
func (o *FetchOutcome) IsHTML() bool {
	return strings.Contains(strings.ToLower(o.ContentType()), "text/html")
}

// Resolution is the terminal outcome of resolving one host.
type Resolution struct {
	Host         string
	Available    bool // some hop returned 200
	FinalURL     string
	RedirectType RedirectType
	Hops         int // requests attempted
	StatusCode   int // status of the terminal response, 0 when none was obtained
	Title        string
	HasTitle     bool
	ContentType  string
	Headers      map[string]string
	Body         []byte
	Technologies []string
	Error        string
}

// Responded reports whether at least one HTTP response was obtained.
func (r *Resolution) Responded() bool {
	return r.StatusCode != 0
}
