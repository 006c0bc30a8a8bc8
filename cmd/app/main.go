package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Harvey-AU/hostprobe/internal/cache"
	"github.com/Harvey-AU/hostprobe/internal/candidates"
	"github.com/Harvey-AU/hostprobe/internal/crawler"
	"github.com/Harvey-AU/hostprobe/internal/db"
	"github.com/Harvey-AU/hostprobe/internal/jobs"
	"github.com/Harvey-AU/hostprobe/internal/observability"
	"github.com/Harvey-AU/hostprobe/internal/storage"
	"github.com/Harvey-AU/hostprobe/internal/techdetect"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const memoFile = "badhosts.json"

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// Config holds the application configuration loaded from environment variables
type Config struct {
	Env                  string        // Environment (development/production)
	SentryDSN            string        // Sentry DSN for error tracking
	LogLevel             string        // Log level (debug, info, warn, error)
	OutputDir            string        // Output root, empty means out_<wordfile stem>
	ProbeTimeout         time.Duration // Per-hop request timeout
	MaxRedirects         int           // Hop bound per host
	Concurrency          int           // Hosts resolved at once
	RateLimit            float64       // Requests per second across workers, 0 disables
	UserAgent            string        // User agent sent with every request
	TechDetectEnabled    bool          // Fingerprint terminal responses with wappalyzer
	DatabaseURL          string        // Postgres result store, empty disables
	SupabaseURL          string        // Supabase project URL for artifact mirroring
	SupabaseServiceKey   string        // Service role key for Supabase Storage
	StorageBucket        string        // Bucket receiving mirrored artifacts
	ObservabilityEnabled bool          // Toggle OpenTelemetry + Prometheus exporters
	MetricsAddr          string        // Address for Prometheus metrics endpoint (":9464" style)
	OTLPEndpoint         string        // OTLP HTTP endpoint for trace export
	OTLPHeaders          string        // Comma separated headers for OTLP exporter
	OTLPInsecure         bool          // Disable TLS verification for OTLP exporter
}

func loadConfig() *Config {
	return &Config{
		Env:                  getEnvWithDefault("APP_ENV", "development"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		OutputDir:            os.Getenv("OUTPUT_DIR"),
		ProbeTimeout:         getEnvDuration("PROBE_TIMEOUT", 10*time.Second),
		MaxRedirects:         getEnvInt("PROBE_MAX_REDIRECTS", 5),
		Concurrency:          getEnvInt("PROBE_CONCURRENCY", 1),
		RateLimit:            getEnvFloat("PROBE_RATE_LIMIT", 0),
		UserAgent:            getEnvWithDefault("PROBE_USER_AGENT", "HostProbe/1.0"),
		TechDetectEnabled:    getEnvWithDefault("TECH_DETECT_ENABLED", "false") == "true",
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey:   os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		StorageBucket:        os.Getenv("STORAGE_BUCKET"),
		ObservabilityEnabled: getEnvWithDefault("OBSERVABILITY_ENABLED", "false") == "true",
		MetricsAddr:          getEnvWithDefault("METRICS_ADDR", ":9464"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:          os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		OTLPInsecure:         getEnvWithDefault("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",
	}
}

func main() {
	// Load .env files - .env.local takes priority for development
	godotenv.Load(".env.local", ".env")

	config := loadConfig()
	setupLogging(config)

	os.Exit(realMain(config))
}

// realMain wires optional integrations around an app and runs it. It exists
// so deferred cleanups run before os.Exit.
func realMain(config *Config) int {
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              config.SentryDSN,
			Environment:      config.Env,
			AttachStacktrace: true,
			Debug:            config.Env == "development",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", config.Env).Msg("Sentry initialised successfully")
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.ObservabilityEnabled {
		obsProviders, err := observability.Init(ctx, observability.Config{
			Enabled:        true,
			ServiceName:    "hostprobe",
			Environment:    config.Env,
			OTLPEndpoint:   strings.TrimSpace(config.OTLPEndpoint),
			OTLPHeaders:    parseOTLPHeaders(config.OTLPHeaders),
			OTLPInsecure:   config.OTLPInsecure,
			MetricsAddress: config.MetricsAddr,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise observability providers")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := obsProviders.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
				}
			}()

			metricsSrv := observability.NewMetricsServer(obsProviders)
			go func() {
				log.Info().Str("addr", metricsSrv.Addr).Msg("Metrics server listening")
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					sentry.CaptureException(err)
					log.Error().Err(err).Msg("Metrics server failed")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Warn().Err(err).Msg("Graceful shutdown of metrics server failed")
				}
			}()
		}
	}

	crawlerConfig := crawler.DefaultConfig()
	crawlerConfig.Timeout = config.ProbeTimeout
	crawlerConfig.MaxRedirects = config.MaxRedirects
	crawlerConfig.UserAgent = config.UserAgent
	crawlerConfig.Instrument = config.ObservabilityEnabled

	a := &app{
		config:  config,
		fetcher: crawler.New(crawlerConfig),
		tlds:    candidates.DefaultTLDs,
		stderr:  os.Stderr,
	}

	if config.TechDetectEnabled {
		detector, err := techdetect.New()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise technology detector, fingerprinting disabled")
		} else {
			a.runnerOpts = append(a.runnerOpts, jobs.WithDetector(detector))
		}
	}

	if config.DatabaseURL != "" {
		pgDB, err := db.New(ctx, &db.Config{DatabaseURL: config.DatabaseURL})
		if err != nil {
			sentry.CaptureException(err)
			log.Warn().Err(err).Msg("Failed to connect to PostgreSQL, results will not be stored")
		} else {
			defer pgDB.Close()
			a.runnerOpts = append(a.runnerOpts, jobs.WithResultStore(pgDB.Results()))
		}
	}

	if config.SupabaseURL != "" && config.SupabaseServiceKey != "" && config.StorageBucket != "" {
		mirror := storage.New(config.SupabaseURL, config.SupabaseServiceKey, config.StorageBucket)
		a.runnerOpts = append(a.runnerOpts, jobs.WithMirror(mirror))
		log.Info().Str("bucket", config.StorageBucket).Msg("Mirroring artifacts to Supabase Storage")
	}

	return a.run(ctx, os.Args[1:])
}

// app probes every word list named on the command line.
type app struct {
	config     *Config
	fetcher    crawler.Fetcher
	tlds       []string
	runnerOpts []jobs.Option
	stderr     io.Writer
}

func (a *app) usage(fs *flag.FlagSet) {
	fmt.Fprintf(a.stderr, "usage: %s [-o dir] [-concurrency n] <wordfile>...\n\n", fs.Name())
	fmt.Fprintln(a.stderr, "Probes word.tld for every word in each file and every known TLD.")
	fmt.Fprintln(a.stderr, "Results go to <dir>/head, <dir>/body and <dir>/"+memoFile+".")
	fmt.Fprintln(a.stderr)
	fs.PrintDefaults()
}

func (a *app) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("hostprobe", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	outDir := fs.String("o", a.config.OutputDir, "output directory (default out_<wordfile stem>)")
	concurrency := fs.Int("concurrency", a.config.Concurrency, "hosts probed at once")
	fs.Usage = func() { a.usage(fs) }

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		a.usage(fs)
		return exitUsage
	}

	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			fmt.Fprintf(a.stderr, "%s: not a file, skipping\n", path)
			log.Warn().Str("path", path).Msg("Argument is not a file")
			continue
		}

		dir := *outDir
		if dir == "" {
			dir = defaultOutputDir(path)
		}

		switch err := a.probeFile(ctx, path, dir, *concurrency); {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return exitInterrupted
		default:
			fmt.Fprintf(a.stderr, "%s: %v\n", path, err)
			return exitFailure
		}
	}
	return exitOK
}

// probeFile runs one word list. The memo is written back even when the run
// was interrupted; failing to write it is an error.
func (a *app) probeFile(ctx context.Context, path, outDir string, concurrency int) error {
	logger := log.With().Str("source", path).Str("output_dir", outDir).Logger()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open word list: %w", err)
	}
	words, err := candidates.ReadWords(f)
	f.Close()
	if err != nil {
		return err
	}
	hosts := candidates.Hosts(words, a.tlds)

	memoPath := filepath.Join(outDir, memoFile)
	memo, err := cache.LoadHostSet(memoPath)
	if err != nil {
		return err
	}
	logger.Info().
		Int("words", len(words)).
		Int("hosts", len(hosts)).
		Int("known_bad", memo.Len()).
		Msg("Probing word list")

	opts := append([]jobs.Option{jobs.WithLogger(logger)}, a.runnerOpts...)
	runner := jobs.NewRunner(jobs.Config{
		Concurrency:  concurrency,
		RateLimit:    a.config.RateLimit,
		MaxRedirects: a.config.MaxRedirects,
		Source:       path,
	}, a.fetcher, storage.NewWriter(outDir), memo, opts...)

	summary, runErr := runner.Run(ctx, hosts)

	if err := memo.Save(memoPath); err != nil {
		sentry.CaptureException(err)
		logger.Error().Err(err).Msg("Failed to save bad-host memo")
		return err
	}

	fmt.Fprintf(a.stderr, "%s: %d hosts, %d available, %d unavailable, %d skipped, %d errored\n",
		path, summary.Total, summary.Available, summary.Unavailable, summary.Skipped, summary.Errored)

	return runErr
}

// defaultOutputDir returns out_<stem> next to the working directory.
func defaultOutputDir(path string) string {
	base := filepath.Base(path)
	return "out_" + strings.TrimSuffix(base, filepath.Ext(base))
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
		return defaultValue
	}
	return result
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := strconv.ParseFloat(value, 64)
	if err != nil || result < 0 {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Float64("default", defaultValue).
			Msg("Invalid number in environment variable, using default")
		return defaultValue
	}
	return result
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := time.ParseDuration(value)
	if err != nil || result <= 0 {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
		return defaultValue
	}
	return result
}

func parseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(parts[1])
	}

	return headers
}

// setupLogging configures the logging system
func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Str("service", "hostprobe").
			Logger()
	}
}
