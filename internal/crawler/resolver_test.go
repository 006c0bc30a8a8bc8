package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher serves canned outcomes by URL and records every request.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses map[string]*FetchOutcome
	failures  map[string]error
	requests  []string
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		responses: make(map[string]*FetchOutcome),
		failures:  make(map[string]error),
	}
}

func (f *scriptedFetcher) respond(url string, status int, headers map[string]string, body string) {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	f.responses[url] = newFetchOutcome(url, status, h, []byte(body))
}

func (f *scriptedFetcher) Fetch(ctx context.Context, targetURL string) (*FetchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, targetURL)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.failures[targetURL]; ok {
		return nil, err
	}
	if out, ok := f.responses[targetURL]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("dial tcp: lookup %s: no such host", targetURL)
}

func newTestResolver(host string, f Fetcher, opts ...Option) *HostResolver {
	return NewHostResolver(host, f, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

const htmlType = "text/html; charset=utf-8"

func TestResolveDirectSuccess(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 200, map[string]string{"Content-Type": htmlType, "Server": "nginx"},
		"<html><head><title>Welcome</title></head></html>")

	res, err := newTestResolver("a.test", f).Resolve(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Available)
	assert.Equal(t, "http://a.test/", res.FinalURL)
	assert.Equal(t, RedirectNone, res.RedirectType)
	assert.Equal(t, 1, res.Hops)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "Welcome", res.Title)
	assert.True(t, res.HasTitle)
	assert.Equal(t, htmlType, res.ContentType)
	assert.Equal(t, "nginx", res.Headers["server"])
	assert.True(t, res.Responded())
	assert.Equal(t, []string{"http://a.test/"}, f.requests)
}

func TestResolveFollowsLocation(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 301, map[string]string{"Location": "https://a.test/"}, "")
	f.respond("https://a.test/", 302, map[string]string{"Location": "/home"}, "")
	f.respond("https://a.test/home", 200, map[string]string{"Content-Type": "text/plain"}, "hello")

	res, err := newTestResolver("a.test", f).Resolve(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Available)
	assert.Equal(t, "https://a.test/home", res.FinalURL)
	assert.Equal(t, RedirectHTTPLocation, res.RedirectType)
	assert.Equal(t, 3, res.Hops)
	assert.Equal(t, "hello", string(res.Body))
	assert.False(t, res.HasTitle)
	assert.Equal(t, []string{"http://a.test/", "https://a.test/", "https://a.test/home"}, f.requests)
}

func TestResolveTooManyRedirects(t *testing.T) {
	f := newScriptedFetcher()
	for i := 0; i < 6; i++ {
		f.respond(fmt.Sprintf("http://loop.test/%s", hopPath(i)), 302,
			map[string]string{"Location": fmt.Sprintf("/%d", i+1)}, "")
	}

	res, err := newTestResolver("loop.test", f).Resolve(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyRedirects)
	assert.False(t, res.Available)
	assert.Equal(t, 5, res.Hops)
	assert.Len(t, f.requests, 5, "exactly five hops are attempted")
	assert.Equal(t, "http://loop.test/4", res.FinalURL)
	assert.Equal(t, 302, res.StatusCode)
	assert.True(t, res.Responded())
}

func hopPath(i int) string {
	if i == 0 {
		return ""
	}
	return fmt.Sprintf("%d", i)
}

func TestResolveMaxRedirectsOption(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 302, map[string]string{"Location": "/b"}, "")
	f.respond("http://a.test/b", 200, nil, "ok")

	_, err := newTestResolver("a.test", f, WithMaxRedirects(1)).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrTooManyRedirects)
	assert.Len(t, f.requests, 1)
}

func TestResolveMetaRefresh(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 200, map[string]string{"Content-Type": "text/html"},
		`<html><head><title>Moving</title><meta http-equiv="refresh" content="0; url=/landing"></head></html>`)
	f.respond("http://a.test/landing", 200, map[string]string{"Content-Type": "text/html"},
		`<html><head><title>Landing</title></head></html>`)

	res, err := newTestResolver("a.test", f).Resolve(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Available)
	assert.Equal(t, RedirectMetaRefresh, res.RedirectType)
	assert.Equal(t, "http://a.test/landing", res.FinalURL)
	assert.Equal(t, "Landing", res.Title)
	assert.Equal(t, 2, res.Hops)
}

func TestResolveLocationThenMetaRefreshKeepsLastType(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 301, map[string]string{"Location": "http://www.a.test/"}, "")
	f.respond("http://www.a.test/", 200, map[string]string{"Content-Type": "text/html"},
		`<meta http-equiv="refresh" content='5;url="http://b.test/"'>`)
	f.respond("http://b.test/", 200, map[string]string{"Content-Type": "text/plain"}, "done")

	res, err := newTestResolver("a.test", f).Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RedirectMetaRefresh, res.RedirectType)
	assert.Equal(t, "http://b.test/", res.FinalURL)
	assert.Equal(t, 3, res.Hops)
}

func TestResolveAvailabilitySticksAfterLaterFailure(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 200, map[string]string{"Content-Type": "text/html"},
		`<title>Old</title><meta http-equiv="refresh" content="0;url=http://gone.test/">`)
	f.failures["http://gone.test/"] = errors.New("connection refused")

	res, err := newTestResolver("a.test", f).Resolve(context.Background())

	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, res.Available, "a 200 was seen earlier in the chain")
	assert.Equal(t, "http://a.test/", res.FinalURL)
	assert.Equal(t, "Old", res.Title)
	assert.Equal(t, 2, res.Hops)
}

func TestResolveMetaRefreshOn404NotFollowed(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 404, map[string]string{"Content-Type": "text/html"},
		`<title>Not Found</title><meta http-equiv="refresh" content="0;url=/x">`)

	res, err := newTestResolver("a.test", f).Resolve(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Available)
	assert.Equal(t, RedirectNone, res.RedirectType)
	assert.Equal(t, 404, res.StatusCode)
	assert.Equal(t, "Not Found", res.Title)
	assert.Len(t, f.requests, 1)
}

func TestResolveNonHTMLIgnoresRefreshMarkup(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 200, map[string]string{"Content-Type": "text/plain"},
		`<meta http-equiv="refresh" content="0;url=/x">`)

	res, err := newTestResolver("a.test", f).Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RedirectNone, res.RedirectType)
	assert.False(t, res.HasTitle)
	assert.Len(t, f.requests, 1)
}

func TestResolveTransportFailure(t *testing.T) {
	f := newScriptedFetcher()

	res, err := newTestResolver("nxdomain.test", f).Resolve(context.Background())

	assert.ErrorIs(t, err, ErrTransport)
	assert.False(t, res.Available)
	assert.False(t, res.Responded())
	assert.Equal(t, 1, res.Hops)
	assert.NotEmpty(t, res.Error)
}

func TestResolveBadLocation(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 302, map[string]string{"Location": "ftp://a.test/file"}, "")

	res, err := newTestResolver("a.test", f).Resolve(context.Background())

	assert.ErrorIs(t, err, ErrProtocol)
	assert.False(t, res.Available)
	assert.Equal(t, 302, res.StatusCode)
	assert.Len(t, f.requests, 1)
}

func TestResolveNon200WithoutLocation(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 503, map[string]string{"Content-Type": "text/plain"}, "down")

	res, err := newTestResolver("a.test", f).Resolve(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Available)
	assert.True(t, res.Responded())
	assert.Equal(t, "down", string(res.Body))
}

func TestResolveIsMemoised(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 200, nil, "ok")

	r := newTestResolver("a.test", f)
	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	second, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, r.Available(context.Background()))
	assert.Len(t, f.requests, 1, "second call must not hit the network")
}

func TestResolveFailureIsMemoised(t *testing.T) {
	f := newScriptedFetcher()

	r := newTestResolver("a.test", f)
	_, err1 := r.Resolve(context.Background())
	_, err2 := r.Resolve(context.Background())

	assert.ErrorIs(t, err1, ErrTransport)
	assert.Equal(t, err1, err2)
	assert.Len(t, f.requests, 1)
}

func TestResolveCancelledContextNotMemoised(t *testing.T) {
	f := newScriptedFetcher()
	f.respond("http://a.test/", 200, nil, "ok")

	r := newTestResolver("a.test", f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTransport)

	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Len(t, f.requests, 2)
}

func TestResolveHeaderFolding(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Set("X-Empty", "")
	out := newFetchOutcome("http://a.test/", 200, h, nil)

	assert.Equal(t, "b=2", out.Headers["set-cookie"], "last value wins")
	assert.Contains(t, out.Headers, "x-empty")
}
