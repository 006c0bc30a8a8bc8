package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Fetcher performs a single GET without following redirects.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*FetchOutcome, error)
}

// Crawler fetches single hops through a colly collector. Redirects are never
// followed by the transport; the resolver decides what to do with them.
type Crawler struct {
	config *Config
	colly  *colly.Collector
}

// New creates a new Crawler with the given configuration.
// If config is nil, default configuration is used
func New(config *Config) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}

	options := []colly.CollectorOption{
		colly.UserAgent(config.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		// Non-2xx responses are outcomes, not errors
		colly.ParseHTTPErrorResponse(),
	}
	if config.MaxBodySize > 0 {
		options = append(options, colly.MaxBodySize(config.MaxBodySize))
	}
	c := colly.NewCollector(options...)

	c.SetClient(&http.Client{
		Timeout:   config.Timeout,
		Transport: newTransport(config),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	})

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	return &Crawler{
		config: config,
		colly:  c,
	}
}

// newTransport builds the hop transport. Certificate verification is disabled.
func newTransport(config *Config) http.RoundTripper {
	var rt http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		TLSHandshakeTimeout: config.Timeout,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if config.Instrument {
		rt = otelhttp.NewTransport(rt)
	}
	return rt
}

// Config returns the Crawler's configuration.
func (c *Crawler) Config() *Config {
	return c.config
}

// validateFetchRequest checks the URL before any I/O happens
func validateFetchRequest(ctx context.Context, targetURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return err
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid URL format: %s", targetURL)
	}

	return nil
}

// Fetch performs one GET of targetURL and returns whatever response arrived,
// including 3xx and error statuses.
func (c *Crawler) Fetch(ctx context.Context, targetURL string) (*FetchOutcome, error) {
	if err := validateFetchRequest(ctx, targetURL); err != nil {
		return nil, err
	}

	start := time.Now()
	var outcome *FetchOutcome

	collyClone := c.colly.Clone()

	collyClone.OnResponse(func(r *colly.Response) {
		var header http.Header
		if r.Headers != nil {
			header = *r.Headers
		}
		outcome = newFetchOutcome(targetURL, r.StatusCode, header, r.Body)
		outcome.ResponseTime = time.Since(start).Milliseconds()
	})

	done := make(chan error, 1)

	// Visit in a goroutine so the caller's context can cut the wait short
	go func() {
		done <- collyClone.Visit(targetURL)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Debug().
				Err(err).
				Str("url", targetURL).
				Dur("duration_ms", time.Since(start)).
				Msg("Fetch failed")
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if outcome == nil {
		return nil, errors.New("no response received")
	}

	log.Debug().
		Str("url", targetURL).
		Int("status", outcome.StatusCode).
		Int64("response_time_ms", outcome.ResponseTime).
		Msg("Fetch completed")

	return outcome, nil
}
