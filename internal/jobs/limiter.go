package jobs

import (
	"context"

	"github.com/Harvey-AU/hostprobe/internal/crawler"
	"golang.org/x/time/rate"
)

// limitedFetcher shares one token bucket between every worker so the whole
// run stays under the configured request rate.
type limitedFetcher struct {
	next    crawler.Fetcher
	limiter *rate.Limiter
}

func newLimitedFetcher(next crawler.Fetcher, perSecond float64) crawler.Fetcher {
	if perSecond <= 0 {
		return next
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &limitedFetcher{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (f *limitedFetcher) Fetch(ctx context.Context, targetURL string) (*crawler.FetchOutcome, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return f.next.Fetch(ctx, targetURL)
}
