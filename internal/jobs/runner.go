package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Harvey-AU/hostprobe/internal/cache"
	"github.com/Harvey-AU/hostprobe/internal/crawler"
	"github.com/Harvey-AU/hostprobe/internal/dump"
	"github.com/Harvey-AU/hostprobe/internal/observability"
	"github.com/Harvey-AU/hostprobe/internal/storage"
	"github.com/Harvey-AU/hostprobe/internal/util"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the base logger for the run.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// WithDetector enables technology fingerprinting of terminal responses.
func WithDetector(d TechDetector) Option {
	return func(r *Runner) {
		r.detector = d
	}
}

// WithResultStore records every resolution in store.
func WithResultStore(store ResultStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMirror copies written artifacts through m.
func WithMirror(m Mirror) Option {
	return func(r *Runner) {
		r.mirror = m
	}
}

// Runner resolves a batch of hosts, writes artifacts for hosts that answered
// and records the rest in the bad-host memo.
type Runner struct {
	config  Config
	fetcher crawler.Fetcher
	writer  *storage.Writer
	memo    *cache.HostSet

	detector TechDetector
	store    ResultStore
	mirror   Mirror
	logger   zerolog.Logger
	runID    string

	inflight singleflight.Group
}

// NewRunner creates a Runner. fetcher is shared by every worker, so it must
// be safe for concurrent use when config.Concurrency > 1.
func NewRunner(config Config, fetcher crawler.Fetcher, writer *storage.Writer, memo *cache.HostSet, opts ...Option) *Runner {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}

	r := &Runner{
		config:  config,
		fetcher: newLimitedFetcher(fetcher, config.RateLimit),
		writer:  writer,
		memo:    memo,
		logger:  log.Logger,
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("run_id", r.runID).Logger()
	return r
}

// RunID returns the identifier attached to logs, spans and stored rows.
func (r *Runner) RunID() string {
	return r.runID
}

// Run processes hosts in order. With a concurrency of one, hosts are
// resolved strictly one after another. Per-host failures never fail the run;
// the returned error is the context error when the run was interrupted.
func (r *Runner) Run(ctx context.Context, hosts []string) (Summary, error) {
	span := sentry.StartSpan(ctx, "runner.run")
	defer span.Finish()
	span.SetTag("run_id", r.runID)
	span.SetTag("source", r.config.Source)

	start := time.Now()
	summary := Summary{RunID: r.runID, Total: len(hosts)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)

	r.logger.Info().
		Int("hosts", len(hosts)).
		Int("concurrency", r.config.Concurrency).
		Str("source", r.config.Source).
		Msg("Starting probe run")

	for _, host := range hosts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := r.ProcessHost(gctx, host)
			mu.Lock()
			summary.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)

	event := r.logger.Info()
	if ctx.Err() != nil {
		event = r.logger.Warn()
	}
	event.
		Int("total", summary.Total).
		Int("skipped", summary.Skipped).
		Int("available", summary.Available).
		Int("unavailable", summary.Unavailable).
		Int("errored", summary.Errored).
		Dur("duration", summary.Duration).
		Msg("Probe run finished")

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("probe run interrupted: %w", err)
	}
	return summary, nil
}

// ProcessHost resolves one host unless the memo or an existing head artifact
// says it is already done. Duplicate hosts in flight share a single
// resolution.
func (r *Runner) ProcessHost(ctx context.Context, host string) Outcome {
	v, _, _ := r.inflight.Do(host, func() (any, error) {
		return r.processHost(ctx, host), nil
	})
	return v.(Outcome)
}

func (r *Runner) processHost(ctx context.Context, host string) (outcome Outcome) {
	logger := r.logger.With().Str("host", host).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic while probing host")
			sentry.CurrentHub().Recover(rec)
			r.memo.Add(host)
			outcome = OutcomeErrored
		}
	}()

	if r.memo.Contains(host) {
		logger.Debug().Msg("Skipping known bad host")
		return OutcomeSkipped
	}
	if r.writer.Exists(host) {
		logger.Debug().Msg("Skipping host with existing head artifact")
		return OutcomeSkipped
	}

	ctx, span := observability.StartProbeSpan(ctx, observability.ProbeSpanInfo{
		RunID:  r.runID,
		Host:   host,
		Source: r.config.Source,
	})
	defer span.End()

	start := time.Now()
	resolver := crawler.NewHostResolver(host, r.fetcher,
		crawler.WithLogger(logger),
		crawler.WithMaxRedirects(r.config.MaxRedirects),
	)
	res, err := resolver.Resolve(ctx)

	defer func() {
		span.SetAttributes(
			attribute.String("probe.outcome", string(outcome)),
			attribute.Int("probe.hops", res.Hops),
			attribute.Bool("probe.available", res.Available),
		)
		observability.RecordProbe(ctx, observability.ProbeMetrics{
			RunID:    r.runID,
			Outcome:  string(outcome),
			Hops:     res.Hops,
			Duration: time.Since(start),
		})
	}()

	if err != nil {
		if ctx.Err() != nil {
			return outcomeCancelled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !isHostError(err) {
			sentry.CaptureException(err)
		}
	}

	if !res.Responded() {
		r.memo.Add(host)
		logger.Info().Err(err).Msg("No response, host added to bad-host memo")
		r.save(ctx, logger, res)
		return OutcomeUnavailable
	}

	if r.detector != nil {
		if detected := r.detector.Detect(res.Headers, res.Body); detected != nil {
			res.Technologies = detected.Names()
		}
	}

	head := []dump.Value{res.HeadValue(), res.HeaderValue()}
	if writeErr := r.writer.WriteResult(host, head, res.Body); writeErr != nil {
		if errors.Is(writeErr, storage.ErrAlreadyClaimed) {
			logger.Debug().Msg("Head artifact claimed by another worker")
			return OutcomeSkipped
		}
		logger.Error().Err(writeErr).Msg("Failed to write host artifacts")
		sentry.CaptureException(writeErr)
		return OutcomeErrored
	}

	logger.Info().
		Bool("available", res.Available).
		Str("final_url", res.FinalURL).
		Bool("significant_redirect", util.IsSignificantRedirect("http://"+host+"/", res.FinalURL)).
		Msg("Wrote host artifacts")

	r.save(ctx, logger, res)
	if r.mirror != nil {
		if err := r.mirror.MirrorHost(ctx, r.writer, host); err != nil {
			logger.Warn().Err(err).Msg("Failed to mirror host artifacts")
		}
	}

	if res.Available {
		return OutcomeAvailable
	}
	return OutcomeUnavailable
}

func (r *Runner) save(ctx context.Context, logger zerolog.Logger, res *crawler.Resolution) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, r.runID, res); err != nil {
		logger.Warn().Err(err).Msg("Failed to save probe result")
	}
}

// isHostError reports whether err describes the host rather than a fault
// in this program.
func isHostError(err error) bool {
	return errors.Is(err, crawler.ErrTransport) ||
		errors.Is(err, crawler.ErrTooManyRedirects) ||
		errors.Is(err, crawler.ErrProtocol)
}
