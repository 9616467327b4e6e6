package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"PDFAnnouncer/internal/compose"
	"PDFAnnouncer/internal/config"
	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/infrastructure/extract"
	"PDFAnnouncer/internal/infrastructure/llm"
	"PDFAnnouncer/internal/infrastructure/lock"
	"PDFAnnouncer/internal/infrastructure/objectstore"
	"PDFAnnouncer/internal/infrastructure/parser"
	"PDFAnnouncer/internal/infrastructure/publish"
	"PDFAnnouncer/internal/infrastructure/render"
	"PDFAnnouncer/internal/infrastructure/scheduler"
	"PDFAnnouncer/internal/infrastructure/statefile"
	"PDFAnnouncer/internal/infrastructure/storage"
	"PDFAnnouncer/internal/infrastructure/telemetry"
	"PDFAnnouncer/internal/logging"
	"PDFAnnouncer/internal/platform"
	"PDFAnnouncer/internal/ports"
	"PDFAnnouncer/internal/usecase"
)

// Flags are the per-invocation switches from the command line.
type Flags struct {
	DryRun     bool
	NoPost     bool
	LocalState string
	// Out receives dry-run posts; defaults to stdout.
	Out io.Writer
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	reporter ports.ErrorReporter
	closers  []func()
}

// New builds a runnable application instance. Network clients are created here; nothing
// is listed or posted until Run.
func New(ctx context.Context, cfg config.Config, flags Flags, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.LogLevel)
	}
	if flags.Out == nil {
		flags.Out = os.Stdout
	}
	if flags.LocalState != "" {
		cfg.State.LocalPath = flags.LocalState
	}

	a := &Application{cfg: cfg, logger: baseLogger}

	registry, err := buildPublishers(cfg, flags)
	if err != nil {
		return nil, err
	}

	var bucket *objectstore.Bucket
	if cfg.Source.Bucket != "" {
		api, err := objectstore.NewS3API(ctx, cfg.Source.Region, cfg.Source.Endpoint)
		if err != nil {
			return nil, err
		}
		bucket = objectstore.NewBucket(api, objectstore.Options{
			Bucket:        cfg.Source.Bucket,
			Prefix:        cfg.Source.Prefix,
			StateKey:      cfg.State.Key,
			PublicBaseURL: cfg.Source.PublicBaseURL,
			MaxObjectSize: cfg.Source.MaxObjectSize,
		}, baseLogger.With("component", "bucket"))
	}

	source, err := buildSource(cfg, bucket, baseLogger)
	if err != nil {
		return nil, err
	}

	store, err := a.buildStore(ctx, cfg, bucket)
	if err != nil {
		a.Close()
		return nil, err
	}

	composeOpts := []compose.Option{
		compose.WithLimits(limitOverrides(cfg.Compose.Limits, baseLogger)),
		compose.WithLogger(baseLogger.With("component", "composer")),
	}
	if cfg.Summarizer.APIKey != "" {
		composeOpts = append(composeOpts, compose.WithSummarizer(llm.NewChatGPTClient(cfg.Summarizer)))
	}
	composer := compose.New(registry.Platforms(), composeOpts...)

	var renderer ports.Renderer
	if cfg.Extract.Thumbnail {
		renderer = render.NewFirstPage(cfg.Extract.PdftoppmPath, cfg.Extract.ThumbnailDPI, cfg.Extract.ThumbnailMaxSide)
	}

	a.reporter = telemetry.Nop{}
	if cfg.Telemetry.SentryDSN != "" {
		reporter, err := telemetry.NewSentry(cfg.Telemetry.SentryDSN, cfg.Telemetry.Environment)
		if err != nil {
			baseLogger.Warn("sentry disabled", "error", err)
		} else {
			a.reporter = reporter
		}
	}

	var runLock ports.RunLock = lock.Nop{}
	if cfg.Lock.RedisURL != "" && !flags.DryRun {
		client, err := lock.Connect(ctx, cfg.Lock.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		runLock = lock.NewRedis(client, cfg.Lock.Key, cfg.Lock.TTL)
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source: source,
		Store:  store,
		Extractor: extract.NewChain(baseLogger.With("component", "extract"),
			extract.NewPoppler(cfg.Extract.PdftotextPath),
			extract.NewNative(),
		),
		Renderer:   renderer,
		Composer:   composer,
		Publishers: registry.All(),
		Reporter:   a.reporter,
		Metrics:    telemetry.NewMetrics(cfg.Telemetry.PushgatewayURL, cfg.Telemetry.JobName, baseLogger),
		Lock:       runLock,
		Logger:     baseLogger.With("component", "pipeline"),
	}, usecase.Options{
		Concurrency:    cfg.Run.Concurrency,
		MaxAttempts:    cfg.Run.MaxAttempts,
		MaxNew:         cfg.Run.MaxNew,
		DryRun:         flags.DryRun,
		NoPost:         flags.NoPost,
		ListTimeout:    cfg.Run.ListTimeout,
		FetchTimeout:   cfg.Run.FetchTimeout,
		ExtractTimeout: cfg.Run.ExtractTimeout,
		PublishTimeout: cfg.Run.PublishTimeout,
		CommitTimeout:  cfg.Run.CommitTimeout,
	})

	baseLogger.Info("application ready",
		"platforms", registry.Platforms(),
		"source", cfg.Source.Kind,
		"dry_run", flags.DryRun,
		"no_post", flags.NoPost,
	)
	return a, nil
}

// Run performs a single announcement cycle.
func (a *Application) Run(ctx context.Context) (usecase.Report, error) {
	return a.pipeline.Run(ctx)
}

// Schedule runs the cycle now and then every interval until ctx is done.
func (a *Application) Schedule(ctx context.Context, interval time.Duration) error {
	driver := scheduler.NewIntervalScheduler(interval)
	sched := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Run.CommitTimeout+a.cfg.Run.PublishTimeout)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close flushes telemetry and releases connections.
func (a *Application) Close() {
	if a.reporter != nil {
		a.reporter.Flush(2 * time.Second)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildSource(cfg config.Config, bucket *objectstore.Bucket, log *slog.Logger) (ports.DocumentSource, error) {
	switch cfg.Source.Kind {
	case config.SourceWeb:
		return parser.NewIndexSource(&http.Client{Timeout: cfg.Run.FetchTimeout}, cfg.Source.IndexURL,
			cfg.Source.IndexSelector, cfg.Source.MaxObjectSize, log.With("component", "index")), nil
	case config.SourceS3:
		if bucket == nil {
			return nil, errors.New("bucket source needs a bucket name")
		}
		return bucket, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func (a *Application) buildStore(ctx context.Context, cfg config.Config, bucket *objectstore.Bucket) (ports.StateStore, error) {
	switch {
	case cfg.State.LocalPath != "":
		return statefile.New(cfg.State.LocalPath), nil
	case cfg.State.DatabaseDSN != "":
		pool, err := pgxpool.New(ctx, cfg.State.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect ledger database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		ledgerStore := storage.NewPostgresLedger(pool)
		if err := ledgerStore.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return ledgerStore, nil
	case bucket != nil:
		return bucket, nil
	default:
		return nil, errors.New("no ledger store configured")
	}
}

// buildPublishers registers a publisher for every platform with complete credentials,
// narrowed to run.platforms when that list is set.
func buildPublishers(cfg config.Config, flags Flags) (*platform.Registry, error) {
	allowed := map[domain.Platform]bool{}
	for _, name := range cfg.Run.Platforms {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("run.platforms: %w", err)
		}
		allowed[p] = true
	}
	want := func(p domain.Platform) bool { return len(allowed) == 0 || allowed[p] }

	timeout := cfg.Run.PublishTimeout
	registry := platform.NewRegistry()
	if cfg.Mastodon.Enabled() && want(domain.PlatformMastodon) {
		registry.Register(publish.NewMastodon(cfg.Mastodon.BaseURL, cfg.Mastodon.AccessToken, timeout))
	}
	if cfg.Twitter.Enabled() && want(domain.PlatformTwitter) {
		registry.Register(publish.NewTwitter(publish.TwitterCredentials{
			ConsumerKey:       cfg.Twitter.ConsumerKey,
			ConsumerSecret:    cfg.Twitter.ConsumerSecret,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		}, timeout))
	}
	if cfg.Bluesky.Enabled() && want(domain.PlatformBluesky) {
		registry.Register(publish.NewBluesky(cfg.Bluesky.PDS, cfg.Bluesky.Username, cfg.Bluesky.AppPassword, timeout))
	}
	if cfg.Telegram.Enabled() && want(domain.PlatformTelegram) {
		registry.Register(publish.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, timeout))
	}

	if registry.Len() == 0 {
		return nil, errors.New("no platform has complete credentials")
	}

	if flags.DryRun {
		var mu sync.Mutex
		registry.Wrap(func(p ports.Publisher) ports.Publisher {
			return publish.NewDryRun(p.Name(), flags.Out, &mu)
		})
	} else if cfg.Run.PublishInterval > 0 {
		registry.Wrap(func(p ports.Publisher) ports.Publisher {
			return publish.NewThrottled(p, rate.NewLimiter(rate.Every(cfg.Run.PublishInterval), 1))
		})
	}
	return registry, nil
}

func limitOverrides(raw map[string]int, log *slog.Logger) map[domain.Platform]compose.Limit {
	out := map[domain.Platform]compose.Limit{}
	for name, max := range raw {
		p, err := domain.ParsePlatform(name)
		if err != nil || max <= 0 {
			log.Warn("ignoring compose limit", "platform", name, "max", max)
			continue
		}
		limit := compose.DefaultLimits[p]
		limit.Max = max
		out[p] = limit
	}
	return out
}
