package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Option configures a HostResolver.
type Option func(*HostResolver)

// WithLogger sets the logger used for per-hop output.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *HostResolver) {
		r.logger = logger
	}
}

// WithMaxRedirects overrides the hop bound.
func WithMaxRedirects(n int) Option {
	return func(r *HostResolver) {
		if n > 0 {
			r.maxRedirects = n
		}
	}
}

// HostResolver follows one host's redirect chain to a terminal outcome.
// The first result is cached; later calls to Resolve do no I/O.
type HostResolver struct {
	host         string
	fetcher      Fetcher
	maxRedirects int
	logger       zerolog.Logger

	mu     sync.Mutex
	done   bool
	result *Resolution
	err    error
}

// NewHostResolver returns a resolver for host.
func NewHostResolver(host string, fetcher Fetcher, opts ...Option) *HostResolver {
	r := &HostResolver{
		host:         host,
		fetcher:      fetcher,
		maxRedirects: DefaultConfig().MaxRedirects,
		logger:       log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("host", host).Logger()
	return r
}

// Host returns the host being resolved.
func (r *HostResolver) Host() string {
	return r.host
}

// Resolve fetches http://<host>/ and follows Location and meta-refresh
// redirects. The returned Resolution is never nil. A non-nil error wraps
// ErrTransport, ErrTooManyRedirects or ErrProtocol, or is the context error.
func (r *HostResolver) Resolve(ctx context.Context) (*Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.result, r.err
	}

	res, err := r.resolve(ctx)
	if err != nil && ctx.Err() != nil {
		// Interrupted, not a property of the host
		return res, err
	}

	r.result, r.err, r.done = res, err, true
	return res, err
}

// Available reports whether any hop returned 200.
func (r *HostResolver) Available(ctx context.Context) bool {
	res, _ := r.Resolve(ctx)
	return res.Available
}

func (r *HostResolver) resolve(ctx context.Context) (*Resolution, error) {
	res := &Resolution{
		Host:         r.host,
		RedirectType: RedirectNone,
	}

	var (
		last     *FetchOutcome
		lastPage *Page
		err      error
	)

	target := fmt.Sprintf("http://%s/", r.host)

	for hop := 0; ; hop++ {
		if hop >= r.maxRedirects {
			err = fmt.Errorf("%w: gave up before %s after %d hops", ErrTooManyRedirects, target, hop)
			break
		}

		res.Hops = hop + 1
		outcome, fetchErr := r.fetcher.Fetch(ctx, target)
		if fetchErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else {
				err = fmt.Errorf("%w: %s: %v", ErrTransport, target, fetchErr)
			}
			break
		}

		r.logger.Info().
			Int("hop", hop).
			Str("url", target).
			Int("status", outcome.StatusCode).
			Msg("Received response")

		last, lastPage = outcome, nil
		if outcome.StatusCode == http.StatusOK {
			res.Available = true
		}

		if outcome.StatusCode != http.StatusOK && outcome.Location != "" {
			next, resolveErr := ResolveTarget(target, outcome.Location)
			if resolveErr != nil {
				err = fmt.Errorf("%w: %v", ErrProtocol, resolveErr)
				break
			}
			res.RedirectType = RedirectHTTPLocation
			target = next
			continue
		}

		if outcome.IsHTML() {
			page, parseErr := ParsePage(outcome.Body)
			if parseErr != nil {
				r.logger.Warn().Err(parseErr).Str("url", target).Msg("Failed to parse HTML, metadata left empty")
			} else {
				lastPage = page
			}
		}

		if outcome.StatusCode == http.StatusOK && lastPage != nil && lastPage.Refresh != "" {
			next, resolveErr := ResolveTarget(target, lastPage.Refresh)
			if resolveErr == nil {
				r.logger.Debug().Str("url", target).Str("refresh", next).Msg("Following meta refresh")
				res.RedirectType = RedirectMetaRefresh
				target = next
				continue
			}
			r.logger.Debug().Err(resolveErr).Str("url", target).Msg("Ignoring unusable meta refresh")
		}

		break
	}

	if last != nil {
		res.FinalURL = last.URL
		res.StatusCode = last.StatusCode
		res.ContentType = last.ContentType()
		res.Headers = last.Headers
		res.Body = last.Body
		if lastPage != nil {
			res.Title = lastPage.Title
			res.HasTitle = lastPage.HasTitle
		}
	}

	if err != nil {
		res.Error = err.Error()
		event := r.logger.Warn()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			event = r.logger.Debug()
		}
		event.Err(err).Int("hops", res.Hops).Bool("available", res.Available).Msg("Resolution stopped")
	} else {
		r.logger.Info().
			Int("hops", res.Hops).
			Bool("available", res.Available).
			Str("final_url", res.FinalURL).
			Str("redirect_type", string(res.RedirectType)).
			Msg("Resolution completed")
	}

	return res, err
}
