package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Served-By", "test")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<title>Hi</title>"))
	}))
	defer ts.Close()

	c := New(testConfig())
	out, err := c.Fetch(context.Background(), ts.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, "test", out.Headers["x-served-by"])
	assert.True(t, out.IsHTML())
	assert.Equal(t, "<title>Hi</title>", string(out.Body))
	assert.Equal(t, ts.URL+"/", out.URL)
}

func TestFetchDoesNotFollowRedirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(testConfig())
	out, err := c.Fetch(context.Background(), ts.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusFound, out.StatusCode)
	assert.Equal(t, "/next", out.Location)
}

func TestFetchWithDifferentStatuses(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"success", http.StatusOK},
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
		{"forbidden", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte("status check"))
			}))
			defer ts.Close()

			out, err := New(testConfig()).Fetch(context.Background(), ts.URL)
			require.NoError(t, err, "non-2xx statuses are outcomes, not errors")
			assert.Equal(t, tt.statusCode, out.StatusCode)
		})
	}
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := New(nil).Fetch(context.Background(), "not-a-valid-url")
	assert.Error(t, err)
}

func TestFetchConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ts.URL
	ts.Close()

	_, err := New(testConfig()).Fetch(context.Background(), addr)
	assert.Error(t, err)
}

func TestFetchContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig()).Fetch(ctx, ts.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond

	_, err := New(cfg).Fetch(context.Background(), ts.URL)
	assert.Error(t, err)
}

func TestFetchSkipsCertificateVerification(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("self-signed"))
	}))
	defer ts.Close()

	out, err := New(testConfig()).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "self-signed", string(out.Body))
}

func TestResolverAgainstServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/start", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><meta http-equiv="refresh" content="0; url=/final"></head></html>`))
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Final</title></head></html>`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	host := strings.TrimPrefix(ts.URL, "http://")
	r := NewHostResolver(host, New(testConfig()), WithLogger(zerolog.Nop()))

	res, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Available)
	assert.Equal(t, ts.URL+"/final", res.FinalURL)
	assert.Equal(t, RedirectMetaRefresh, res.RedirectType)
	assert.Equal(t, "Final", res.Title)
	assert.Equal(t, 3, res.Hops)
}
